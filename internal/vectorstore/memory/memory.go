package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ragqa/internal/domain"
	"ragqa/internal/textutil"
)

// Index is a simple in-memory vector index using brute-force inner product.
// Vectors are assumed to be L2-normalised, so scores are cosine similarities.
type Index struct {
	mu        sync.RWMutex
	dimension int
	ids       []int
	vectors   [][]float64
	texts     []string
	seen      map[int]struct{}
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	return &Index{dimension: dimension, seen: make(map[int]struct{})}, nil
}

// Factory adapts New to domain.IndexFactory.
func Factory(_ context.Context, dimension int) (domain.VectorIndex, error) {
	return New(dimension)
}

func (s *Index) Insert(_ context.Context, id int, vector []float64, text string) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return fmt.Errorf("duplicate id %d", id)
	}
	vec := make([]float64, len(vector))
	copy(vec, vector)
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	s.vectors = append(s.vectors, vec)
	s.texts = append(s.texts, text)
	return nil
}

// Query returns at most k entries by descending score; equal scores are
// ordered by ascending id.
func (s *Index) Query(_ context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	results := make([]domain.SearchResult, len(s.vectors))
	for i := range s.vectors {
		results[i] = domain.SearchResult{ID: s.ids[i], Text: s.texts[i], Score: textutil.Dot(s.vectors[i], vector)}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of stored entries.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Close drops all entries.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids, s.vectors, s.texts = nil, nil, nil
	s.seen = make(map[int]struct{})
	return nil
}
