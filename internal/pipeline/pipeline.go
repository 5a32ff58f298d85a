// Package pipeline runs one question against one document: load and chunk,
// embed into a fresh index, retrieve, rerank and generate a grounded answer.
//
// Only document loading and capability failures are fatal. A generation
// failure still yields an Answer whose text describes the failure.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragqa/internal/domain"
	"ragqa/internal/generator"
	"ragqa/internal/rerank"
	"ragqa/internal/retriever"
)

// GenerationErrorPrefix starts the answer text when generation fails.
const GenerationErrorPrefix = "error generating answer: "

// Result holds everything a run produced. On a fatal error it is filled up to
// the failing stage and State is Failed.
type Result struct {
	DocPath    string
	Query      string
	Chunks     []domain.Chunk
	Candidates []domain.SearchResult
	Reranked   []domain.ScoredChunk
	Prompt     string
	Answer     string
	// GenerationErr is set when Answer carries a failure description.
	GenerationErr error
	State         State
	Elapsed       time.Duration
}

type Pipeline struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	newIndex  domain.IndexFactory
	reranker  *rerank.Reranker
	generator *generator.AnswerGenerator

	retrieveTopK int
	rerankTopK   int
	concurrency  int
	logger       *zap.Logger
	observer     func(State, *Result)
}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers fn to be called on every state entered, Idle first.
// The result passed in is filled up to that state and must not be retained.
func WithObserver(fn func(State, *Result)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// WithTopK overrides the retrieval and rerank sizes. Non-positive values keep the defaults.
func WithTopK(retrieve, rerank int) Option {
	return func(p *Pipeline) {
		if retrieve > 0 {
			p.retrieveTopK = retrieve
		}
		if rerank > 0 {
			p.rerankTopK = rerank
		}
	}
}

// WithConcurrency bounds parallel chunk embedding. 1 or less embeds sequentially.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

func New(chunker domain.Chunker, embedder domain.Embedder, newIndex domain.IndexFactory, scorer domain.PairwiseScorer, gen *generator.AnswerGenerator, opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker:      chunker,
		embedder:     embedder,
		newIndex:     newIndex,
		reranker:     rerank.New(scorer),
		generator:    gen,
		retrieveTopK: retriever.DefaultTopK,
		rerankTopK:   rerank.DefaultTopK,
		concurrency:  1,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run answers query from the document at docPath. The returned error is a
// *domain.LoadError or a *domain.StageError; generation failures are reported
// through Result.GenerationErr instead.
func (p *Pipeline) Run(ctx context.Context, docPath, query string) (*Result, error) {
	start := time.Now()
	res := &Result{DocPath: docPath, Query: query}
	p.enter(res, Idle, start)

	chunks, err := p.load(docPath)
	if err != nil {
		return p.fail(res, start, err)
	}
	res.Chunks = chunks
	p.enter(res, Loaded, start, zap.Int("chunks", len(chunks)))

	index, err := p.buildIndex(ctx, chunks)
	if err != nil {
		return p.fail(res, start, err)
	}
	defer func() {
		if cerr := index.Close(); cerr != nil {
			p.logger.Warn("closing vector index", zap.Error(cerr))
		}
	}()
	p.enter(res, Indexed, start, zap.String("embedder", p.embedder.Name()))

	candidates, err := retriever.New(p.embedder, index).Retrieve(ctx, query, p.retrieveTopK)
	if err != nil {
		return p.fail(res, start, &domain.StageError{Stage: "retrieve", Err: err})
	}
	res.Candidates = candidates
	p.enter(res, Retrieved, start, zap.Int("candidates", len(candidates)))

	reranked, err := p.reranker.Rerank(ctx, query, candidates, p.rerankTopK)
	if err != nil {
		return p.fail(res, start, &domain.StageError{Stage: "rerank", Err: err})
	}
	res.Reranked = reranked
	p.enter(res, Reranked, start, zap.Int("candidates", len(reranked)))

	texts := make([]string, len(reranked))
	for i, c := range reranked {
		texts[i] = c.Text
	}
	out := p.generator.Generate(ctx, query, texts)
	res.Prompt = out.Prompt
	if out.OK() {
		res.Answer = out.Text
	} else {
		p.logger.Warn("answer generation failed", zap.Error(out.Err))
		res.GenerationErr = out.Err
		res.Answer = GenerationErrorPrefix + out.Err.Error()
	}
	p.enter(res, Answered, start)
	return res, nil
}

func (p *Pipeline) load(docPath string) ([]domain.Chunk, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return nil, &domain.LoadError{Path: docPath, Err: err}
	}
	chunks, err := p.chunker.Chunk(domain.Document{Path: docPath, Content: string(data)})
	if err != nil {
		return nil, &domain.LoadError{Path: docPath, Err: err}
	}
	if len(chunks) == 0 {
		return nil, &domain.LoadError{Path: docPath, Err: domain.ErrNoChunks}
	}
	return chunks, nil
}

// buildIndex embeds every chunk and inserts it under its position as id.
func (p *Pipeline) buildIndex(ctx context.Context, chunks []domain.Chunk) (domain.VectorIndex, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if prep, ok := p.embedder.(domain.Preparer); ok {
		if err := prep.Prepare(texts); err != nil {
			return nil, &domain.StageError{Stage: "prepare embedder", Err: err}
		}
	}
	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return nil, &domain.StageError{Stage: "embed", Err: err}
	}

	index, err := p.newIndex(ctx, len(vectors[0]))
	if err != nil {
		return nil, &domain.StageError{Stage: "create index", Err: err}
	}
	for i, v := range vectors {
		if err := index.Insert(ctx, i, v, texts[i]); err != nil {
			_ = index.Close()
			return nil, &domain.StageError{Stage: "index", Err: fmt.Errorf("chunk %d: %w", i, err)}
		}
	}
	return index, nil
}

// embedAll returns vectors aligned with texts.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	embed := func(ctx context.Context, i int) error {
		v, err := p.embedder.Embed(ctx, texts[i])
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if len(v) == 0 {
			return fmt.Errorf("chunk %d: %w", i, domain.ErrEmptyEmbedding)
		}
		vectors[i] = v
		return nil
	}

	if p.concurrency <= 1 {
		for i := range texts {
			if err := embed(ctx, i); err != nil {
				return nil, err
			}
		}
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range texts {
		i := i // per-iteration copy; go directive is 1.21 (pre-1.22 loop semantics)
		g.Go(func() error { return embed(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) enter(res *Result, s State, start time.Time, fields ...zap.Field) {
	res.State = s
	res.Elapsed = time.Since(start)
	fields = append(fields, zap.Stringer("state", s), zap.Duration("elapsed", res.Elapsed))
	p.logger.Debug("pipeline state", fields...)
	if p.observer != nil {
		p.observer(s, res)
	}
}

func (p *Pipeline) fail(res *Result, start time.Time, err error) (*Result, error) {
	p.enter(res, Failed, start, zap.Error(err))
	return res, err
}
