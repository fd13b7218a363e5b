package keyword

import (
	"context"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func newTestIndex(t *testing.T, units ...models.RetrievableUnit) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex()
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.IndexUnits(context.Background(), units); err != nil {
		t.Fatalf("IndexUnits: %v", err)
	}
	return idx
}

func unit(id, content, section string) models.RetrievableUnit {
	u := models.RetrievableUnit{ID: id, Content: content, Kind: models.KindText, Metadata: map[string]interface{}{}}
	if section != "" {
		u.Metadata[models.MetaMainSection] = section
	}
	return u
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t,
		unit("r:0", "This report mentions Omnisyan and other findings. The Bayes app is also referenced.", ""),
		unit("r:1", "Unrelated text about shipping schedules.", ""),
	)
	ctx := context.Background()

	results, err := idx.Search(ctx, "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result for \"Omnisyan\", got %d", len(results))
	}
	if results[0].ID != "r:0" {
		t.Errorf("first result ID = %q, want r:0", results[0].ID)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes".
	results, err = idx.Search(ctx, "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) == 0 || results[0].ID != "r:0" {
		t.Fatalf("expected r:0 for \"bayes\", got %+v", results)
	}
}

func TestBleveIndex_SearchFindsTitle(t *testing.T) {
	idx := newTestIndex(t, unit("r:0", "Some body text.", "Quarterly Revenue"))

	results, err := idx.Search(context.Background(), "quarterly", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "r:0" {
		t.Fatalf("expected section heading match, got %+v", results)
	}
}

func TestBleveIndex_TitleBoost(t *testing.T) {
	idx := newTestIndex(t,
		unit("a:0", "the budget was discussed at length", "Minutes"),
		unit("a:1", "figures for the year", "Budget"),
	)
	results, err := idx.Search(context.Background(), "budget", 10, &SearchOptions{TitleBoost: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a:1" {
		t.Errorf("boosted heading match should rank first, got %s", results[0].ID)
	}
}

func TestBleveIndex_TermCoverage(t *testing.T) {
	idx := newTestIndex(t,
		unit("c:0", "solar panels and solar panels and solar panels", ""),
		unit("c:1", "wind turbines beside solar farms", ""),
	)
	results, err := idx.Search(context.Background(), "solar wind", 10, &SearchOptions{PhraseBoost: 1.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c:1" {
		t.Errorf("unit matching every term should rank first, got %s", results[0].ID)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t, unit("f:0", "The invoice total is overdue.", ""))
	ctx := context.Background()

	results, err := idx.Search(ctx, "invoise", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("exact search should miss a typo, got %d results", len(results))
	}

	results, err = idx.Search(ctx, "invoise", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatalf("Search fuzzy: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy search should tolerate one edit, got %d results", len(results))
	}
}

func TestBleveIndex_LimitAndEmptyQuery(t *testing.T) {
	idx := newTestIndex(t,
		unit("l:0", "apple", ""),
		unit("l:1", "apple pie", ""),
		unit("l:2", "apple juice", ""),
	)
	ctx := context.Background()

	results, _ := idx.Search(ctx, "apple", 2, nil)
	if len(results) != 2 {
		t.Errorf("expected limit 2, got %d", len(results))
	}
	results, _ = idx.Search(ctx, "   ", 10, nil)
	if len(results) != 0 {
		t.Errorf("blank query should return nothing, got %d", len(results))
	}
	results, _ = idx.Search(ctx, "apple", 0, nil)
	if len(results) != 0 {
		t.Errorf("zero limit should return nothing, got %d", len(results))
	}
}
