// Package search provides hybrid retrieval (lexical + semantic) and rank fusion.
package search

import "sort"

// RRFConstant damps the contribution of top ranks in reciprocal rank fusion.
const RRFConstant = 60

// FusedResult holds a unit ID with its fused score and per-side ranks (0 when absent).
type FusedResult struct {
	ID            string
	Score         float64
	SemanticRank  int
	KeywordRank   int
	SemanticScore float64
	KeywordScore  float64
}

// Ranking is one retriever's ordered output.
type Ranking struct {
	IDs    []string
	Scores []float64
	Weight float64
}

// Fuse merges rankings by weighted reciprocal rank fusion:
// score(id) = sum over rankings of weight / (RRFConstant + rank), rank starting at 1.
// Results are ordered by score; ties keep the order in which IDs first appear
// across the rankings. The first ranking is reported as semantic, the second as keyword.
func Fuse(rankings ...Ranking) []*FusedResult {
	byID := make(map[string]*FusedResult)
	order := make([]*FusedResult, 0)
	for side, r := range rankings {
		seen := make(map[string]bool, len(r.IDs))
		for i, id := range r.IDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			res, ok := byID[id]
			if !ok {
				res = &FusedResult{ID: id}
				byID[id] = res
				order = append(order, res)
			}
			rank := i + 1
			res.Score += r.Weight / float64(RRFConstant+rank)
			var raw float64
			if i < len(r.Scores) {
				raw = r.Scores[i]
			}
			switch side {
			case 0:
				res.SemanticRank, res.SemanticScore = rank, raw
			case 1:
				res.KeywordRank, res.KeywordScore = rank, raw
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].Score > order[j].Score })
	return order
}
