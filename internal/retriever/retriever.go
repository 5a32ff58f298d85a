// Package retriever embeds a query and asks the vector index for its nearest chunks.
package retriever

import (
	"context"
	"fmt"

	"ragqa/internal/domain"
)

// DefaultTopK is used when Retrieve is called with topK <= 0.
const DefaultTopK = 5

// Retriever must be given the same embedder that built the index.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
}

func New(embedder domain.Embedder, index domain.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns at most topK candidates by descending similarity. An index
// holding fewer than topK entries yields all of them.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := r.index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
