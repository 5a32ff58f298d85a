package domain

import "context"

// Document represents the single text file a run answers questions about.
type Document struct {
	Path    string
	Content string
}

// Chunk is a trimmed, non-empty paragraph of a document. Index is its position
// in document order and doubles as its identifier in the vector index.
type Chunk struct {
	Index int
	Text  string
}

// SearchResult is a chunk returned by a similarity query with its inner-product score.
type SearchResult struct {
	ID    int
	Text  string
	Score float64
}

// ScoredChunk is a retrieval candidate paired with its pairwise relevance score.
type ScoredChunk struct {
	ID    int
	Text  string
	Score float64
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a unit-length vector of fixed dimension.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Preparer is implemented by embedders that must see the corpus before embedding.
type Preparer interface {
	Prepare(corpus []string) error
}

// VectorIndex stores (id, vector, text) entries for one run and answers
// nearest-neighbour queries by descending inner product.
type VectorIndex interface {
	Insert(ctx context.Context, id int, vector []float64, text string) error
	Query(ctx context.Context, vector []float64, k int) ([]SearchResult, error)
	Close() error
}

// IndexFactory creates a fresh, empty VectorIndex for vectors of the given dimension.
type IndexFactory func(ctx context.Context, dimension int) (VectorIndex, error)

// PairwiseScorer scores a (query, candidate) pair as a unit; higher is more relevant.
type PairwiseScorer interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
}

// BatchScorer is implemented by scorers that can score many candidates in one call.
// The returned slice is aligned with candidates.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Generator is a generative-text capability: one prompt in, one completion out.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
