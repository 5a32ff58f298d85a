// Package rerank reorders retrieval candidates by a pairwise relevance score.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"ragqa/internal/domain"
)

// DefaultTopK is used when Rerank is called with topK <= 0.
const DefaultTopK = 3

type Reranker struct {
	scorer domain.PairwiseScorer
}

func New(scorer domain.PairwiseScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores every candidate against query and returns the best
// min(topK, len(candidates)) by descending score. The sort is stable, so equal
// scores keep their retrieval order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.SearchResult, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	scored := make([]domain.ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = domain.ScoredChunk{ID: c.ID, Text: c.Text, Score: scores[i]}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func (r *Reranker) score(ctx context.Context, query string, candidates []domain.SearchResult) ([]float64, error) {
	if bs, ok := r.scorer.(domain.BatchScorer); ok {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Text
		}
		scores, err := bs.ScoreBatch(ctx, query, texts)
		if err != nil {
			return nil, fmt.Errorf("scoring candidates: %w", err)
		}
		if len(scores) != len(candidates) {
			return nil, fmt.Errorf("scorer returned %d scores for %d candidates", len(scores), len(candidates))
		}
		return scores, nil
	}
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		s, err := r.scorer.Score(ctx, query, c.Text)
		if err != nil {
			return nil, fmt.Errorf("scoring candidate %d: %w", c.ID, err)
		}
		scores[i] = s
	}
	return scores, nil
}
