// Package keyword provides Bleve implementation of KeywordIndex.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/yomu/internal/models"
)

// BleveIndex implements KeywordIndex using an in-memory Bleve index.
// One index serves one collection; it is rebuilt from stored units after a restart.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates an empty in-memory Bleve index.
func NewBleveIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query term matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	im.AddDocumentMapping("unit", docMapping)
	im.DefaultType = "unit"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexUnits indexes units in a single batch, keyed by unit ID.
func (b *BleveIndex) IndexUnits(ctx context.Context, units []models.RetrievableUnit) error {
	batch := b.index.NewBatch()
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(u.ID, unitDocument(u)); err != nil {
			return fmt.Errorf("index unit %s: %w", u.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// unitDocument maps a unit onto the indexed fields. The main section heading, when present, is the title.
func unitDocument(u models.RetrievableUnit) map[string]interface{} {
	title, _ := u.Metadata[models.MetaMainSection].(string)
	return map[string]interface{}{
		"content": u.Content,
		"title":   title,
		"kind":    string(u.Kind),
	}
}

// Search returns up to limit units matching query, best first.
// Without boosts a single match over title and content is used; with TitleBoost or PhraseBoost
// above 1 the fields are scored separately and merged (see searchWithBoosts).
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	titleBoost := 1.0
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2 // default fuzziness level
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	if titleBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(ctx, query, limit, fuzzyEnabled, fuzziness)
	}
	return b.searchWithBoosts(ctx, query, limit, titleBoost, phraseBoost, fuzzyEnabled, fuzziness)
}

// searchSingle runs one MatchQuery over all fields.
// When fuzzyEnabled is true, uses FuzzyQuery for each term with the specified fuzziness.
func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = b.buildFuzzyQuery(query, fuzziness, "")
	} else {
		q = bleve.NewMatchQuery(query)
	}
	search := bleve.NewSearchRequest(q)
	search.Size = limit
	results, err := b.index.SearchInContext(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// searchWithBoosts scores each unit as (title*titleBoost + content) * coverage^2 * phrase,
// where coverage is the fraction of query terms the unit matches and phrase is phraseBoost
// for units containing the query as a phrase.
func (b *BleveIndex) searchWithBoosts(ctx context.Context, query string, limit int, titleBoost, phraseBoost float64, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	// Both field queries over-fetch so the merged top "limit" is stable.
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	terms := tokenizeQuery(query)

	scores := make(map[string]float64)
	for _, f := range []struct {
		field string
		boost float64
	}{{"title", titleBoost}, {"content", 1.0}} {
		var q blevequery.Query
		if fuzzyEnabled {
			q = b.buildFuzzyQuery(query, fuzziness, f.field)
		} else {
			mq := bleve.NewMatchQuery(query)
			mq.SetField(f.field)
			q = mq
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Bleve %s search failed: %w", f.field, err)
		}
		for _, hit := range res.Hits {
			scores[hit.ID] += hit.Score * f.boost
		}
	}

	var coverage map[string]int
	if len(terms) > 1 {
		coverage = b.calculateTermCoverage(terms, reqSize, fuzzyEnabled, fuzziness)
	}
	var phrases map[string]bool
	if phraseBoost > 1.0 && len(terms) > 1 {
		phrases = b.findPhraseMatches(query, reqSize)
	}

	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		if len(terms) > 1 {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		if phrases[id] {
			score *= phraseBoost
		}
		out = append(out, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func fuzzyTerm(term string, fuzziness int, field string) *blevequery.FuzzyQuery {
	fq := bleve.NewFuzzyQuery(term)
	fq.SetFuzziness(fuzziness)
	if field != "" {
		fq.SetField(field)
	}
	return fq
}

// buildFuzzyQuery ORs one fuzzy query per term. An empty field searches all fields.
func (b *BleveIndex) buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	switch len(terms) {
	case 0:
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	case 1:
		return fuzzyTerm(terms[0], fuzziness, field)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, fuzzyTerm(term, fuzziness, field))
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// calculateTermCoverage counts how many query terms each unit matches.
func (b *BleveIndex) calculateTermCoverage(terms []string, reqSize int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		var q blevequery.Query = bleve.NewMatchQuery(term)
		if fuzzyEnabled {
			q = fuzzyTerm(term, fuzziness, "")
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// findPhraseMatches returns units whose content or title contains the query as a phrase.
func (b *BleveIndex) findPhraseMatches(query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{"content", "title"} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		req := bleve.NewSearchRequest(pq)
		req.Size = reqSize
		results, err := b.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			matches[hit.ID] = true
		}
	}
	return matches
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
