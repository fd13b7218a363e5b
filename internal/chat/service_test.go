package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

type stubRetriever struct {
	hits    []models.Hit
	err     error
	gotID   string
	gotText string
	gotK    int
}

func (r *stubRetriever) Query(ctx context.Context, identity, text string, k int) (*models.QueryResult, error) {
	r.gotID, r.gotText, r.gotK = identity, text, k
	if r.err != nil {
		return nil, r.err
	}
	return &models.QueryResult{Query: text, Collection: "doc", Hits: r.hits}, nil
}

type recordingGenerator struct {
	prompts []string
	err     error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string, passages []models.Hit) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("answer %d from %d passages", len(g.prompts), len(passages)), nil
}

func newHistory(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestService_AskStartsSessionAndStoresTurns(t *testing.T) {
	hist := newHistory(t)
	ret := &stubRetriever{hits: []models.Hit{
		{Content: "a", Page: 2, Source: "doc.pdf"},
		{Content: "b", Page: 2, Source: "doc.pdf"},
		{Content: "c", Page: 5, Source: "doc.pdf"},
	}}
	gen := &recordingGenerator{}
	svc := NewService(ret, gen, WithHistory(hist, 8), WithTopK(4))
	ctx := context.Background()

	data, err := svc.Ask(ctx, "  What grew?  ", "", "doc.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, "What grew?", data.Query)
	assert.Equal(t, "answer 1 from 3 passages", data.Answer)
	assert.Equal(t, []models.SourceInfo{{Page: "2", Source: "doc.pdf"}, {Page: "5", Source: "doc.pdf"}}, data.Sources)
	assert.Equal(t, "doc.pdf", ret.gotID)
	assert.Equal(t, 4, ret.gotK)
	assert.Equal(t, "What grew?", gen.prompts[0], "first turn has no history prefix")

	msgs, err := hist.RecentMessages(ctx, data.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestService_AskReplaysHistory(t *testing.T) {
	hist := newHistory(t)
	ret := &stubRetriever{hits: []models.Hit{{Content: "a", Page: 1, Source: "doc.pdf"}}}
	gen := &recordingGenerator{}
	svc := NewService(ret, gen, WithHistory(hist, 8))
	ctx := context.Background()

	first, err := svc.Ask(ctx, "What grew?", "", "")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, "By how much?", first.SessionID, "")
	require.NoError(t, err)

	want := "Previous conversation:\nUser: What grew?\nAssistant: answer 1 from 1 passages\n\nCurrent question: By how much?"
	assert.Equal(t, want, gen.prompts[1])
	assert.Equal(t, "By how much?", ret.gotText, "retrieval uses the raw question")
}

func TestService_AskHistoryWindow(t *testing.T) {
	hist := newHistory(t)
	gen := &recordingGenerator{}
	svc := NewService(&stubRetriever{}, gen, WithHistory(hist, 2))
	ctx := context.Background()

	data, err := svc.Ask(ctx, "one", "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "s1", data.SessionID)
	_, err = svc.Ask(ctx, "two", "s1", "")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, "three", "s1", "")
	require.NoError(t, err)

	last := gen.prompts[2]
	assert.NotContains(t, last, "User: one")
	assert.Contains(t, last, "User: two")
	assert.True(t, strings.HasSuffix(last, "Current question: three"))
}

func TestService_AskErrors(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&stubRetriever{}, &recordingGenerator{})
	_, err := svc.Ask(ctx, " \t\n", "", "")
	assert.True(t, errors.Is(err, models.ErrEmptyQuestion))

	missing := &stubRetriever{err: fmt.Errorf("%w: nothing", models.ErrNotFound)}
	_, err = NewService(missing, &recordingGenerator{}).Ask(ctx, "q", "", "")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	hist := newHistory(t)
	gen := &recordingGenerator{err: fmt.Errorf("%w: offline", models.ErrGeneration)}
	data, err := NewService(&stubRetriever{}, gen, WithHistory(hist, 8)).Ask(ctx, "q", "s", "")
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, models.ErrGeneration))
	msgs, err := hist.RecentMessages(ctx, "s", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "failed turns are not stored")
}

func TestSources(t *testing.T) {
	got := Sources([]models.Hit{
		{Page: 3, Source: "a.pdf"},
		{Page: 3, Source: "b.pdf"},
		{Page: 3, Source: "a.pdf"},
		{Page: 1},
	})
	want := []models.SourceInfo{
		{Page: "3", Source: "a.pdf"},
		{Page: "3", Source: "b.pdf"},
		{Page: "1", Source: "Unknown"},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, Sources(nil))
}
