package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"ragqa/internal/chunker"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/tfidf"
	"ragqa/internal/generator"
	"ragqa/internal/rerank"
	"ragqa/internal/vectorstore/memory"
)

const scenarioDoc = "Paris is the capital of France.\n\nBerlin is the capital of Germany."

type countingEmbedder struct {
	inner   *tfidf.Embedder
	calls   atomic.Int64
	prepare atomic.Int64
	failOn  string
}

func (e *countingEmbedder) Name() string { return "counting" }

func (e *countingEmbedder) Prepare(corpus []string) error {
	e.prepare.Add(1)
	return e.inner.Prepare(corpus)
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.calls.Add(1)
	if e.failOn != "" && text == e.failOn {
		return nil, errors.New("model unavailable")
	}
	return e.inner.Embed(ctx, text)
}

type countingIndex struct {
	*memory.Index
	closed *atomic.Int64
}

func (c countingIndex) Close() error {
	c.closed.Add(1)
	return c.Index.Close()
}

type indexCounter struct {
	created atomic.Int64
	closed  atomic.Int64
	dims    []int
	mu      sync.Mutex
}

func (c *indexCounter) factory(_ context.Context, dimension int) (domain.VectorIndex, error) {
	c.created.Add(1)
	c.mu.Lock()
	c.dims = append(c.dims, dimension)
	c.mu.Unlock()
	idx, err := memory.New(dimension)
	if err != nil {
		return nil, err
	}
	return countingIndex{Index: idx, closed: &c.closed}, nil
}

type countingScorer struct {
	inner *rerank.LexicalScorer
	calls atomic.Int64
}

func (s *countingScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	s.calls.Add(1)
	return s.inner.Score(ctx, query, candidate)
}

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type harness struct {
	embedder *countingEmbedder
	indexes  *indexCounter
	scorer   *countingScorer
	gen      *fakeGenerator
	states   []State
	pipeline *Pipeline
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		embedder: &countingEmbedder{inner: tfidf.NewEmbedder()},
		indexes:  &indexCounter{},
		scorer:   &countingScorer{inner: rerank.NewLexicalScorer()},
		gen:      &fakeGenerator{reply: "Paris is the capital of France."},
	}
	opts = append([]Option{WithObserver(func(s State, _ *Result) { h.states = append(h.states, s) })}, opts...)
	h.pipeline = New(chunker.NewParagraphChunker(0), h.embedder, h.indexes.factory, h.scorer, generator.New(h.gen, 0), opts...)
	return h
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_CapitalScenario(t *testing.T) {
	h := newHarness()
	query := "What is the capital of France?"
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, scenarioDoc), query)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(res.Chunks))
	}
	if len(res.Candidates) != 2 {
		t.Errorf("retriever should return both indexed chunks, got %d", len(res.Candidates))
	}
	if len(res.Reranked) != 2 {
		t.Fatalf("reranker should return both candidates, got %d", len(res.Reranked))
	}
	if res.Reranked[0].Text != "Paris is the capital of France." {
		t.Errorf("expected Paris chunk first, got %q", res.Reranked[0].Text)
	}
	for _, want := range []string{query, "Paris is the capital of France.", "Berlin is the capital of Germany."} {
		if !strings.Contains(res.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if len(h.gen.prompts) != 1 || h.gen.prompts[0] != res.Prompt {
		t.Errorf("expected exactly one generation call with the result prompt")
	}
	if res.Answer != "Paris is the capital of France." || res.GenerationErr != nil {
		t.Errorf("unexpected answer %q (%v)", res.Answer, res.GenerationErr)
	}
	if !reflect.DeepEqual(h.states, States()) {
		t.Errorf("states = %v, want %v", h.states, States())
	}
	if res.State != Answered {
		t.Errorf("final state %v", res.State)
	}
	if got := h.embedder.calls.Load(); got != 3 {
		t.Errorf("expected 3 embed calls (2 chunks + query), got %d", got)
	}
	if h.indexes.created.Load() != 1 || h.indexes.closed.Load() != 1 {
		t.Errorf("index should be created and closed once, got %d/%d", h.indexes.created.Load(), h.indexes.closed.Load())
	}
}

func TestRun_MissingDocument(t *testing.T) {
	h := newHarness()
	res, err := h.pipeline.Run(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), "q")
	if !errors.Is(err, domain.ErrDocumentLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("load error should unwrap to fs.ErrNotExist: %v", err)
	}
	var le *domain.LoadError
	if !errors.As(err, &le) || le.Path == "" {
		t.Errorf("expected *LoadError with path, got %T", err)
	}
	assertNothingDownstream(t, h)
	if res.State != Failed || res.Answer != "" {
		t.Errorf("expected failed result without answer, got %+v", res)
	}
	if !reflect.DeepEqual(h.states, []State{Idle, Failed}) {
		t.Errorf("states = %v", h.states)
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	for name, content := range map[string]string{"empty": "", "blank lines": "\n\n   \n\n"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			_, err := h.pipeline.Run(context.Background(), writeDoc(t, content), "q")
			if !errors.Is(err, domain.ErrDocumentLoad) || !errors.Is(err, domain.ErrNoChunks) {
				t.Fatalf("expected no-chunks load error, got %v", err)
			}
			assertNothingDownstream(t, h)
		})
	}
}

func assertNothingDownstream(t *testing.T, h *harness) {
	t.Helper()
	if h.embedder.prepare.Load() != 0 || h.embedder.calls.Load() != 0 {
		t.Errorf("embedder invoked after load failure")
	}
	if h.indexes.created.Load() != 0 {
		t.Errorf("index created after load failure")
	}
	if h.scorer.calls.Load() != 0 {
		t.Errorf("scorer invoked after load failure")
	}
	if len(h.gen.prompts) != 0 {
		t.Errorf("generator invoked after load failure")
	}
}

func TestRun_GenerationFailureBecomesAnswer(t *testing.T) {
	h := newHarness()
	h.gen.err = errors.New("quota exceeded")
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, scenarioDoc), "What is the capital of France?")
	if err != nil {
		t.Fatalf("generation failure must not be fatal: %v", err)
	}
	if !strings.HasPrefix(res.Answer, GenerationErrorPrefix) || !strings.Contains(res.Answer, "quota exceeded") {
		t.Errorf("unexpected answer %q", res.Answer)
	}
	if !errors.Is(res.GenerationErr, domain.ErrGeneration) {
		t.Errorf("GenerationErr = %v", res.GenerationErr)
	}
	if len(res.Reranked) != 2 {
		t.Errorf("reranked passages should be kept, got %d", len(res.Reranked))
	}
	if res.State != Answered {
		t.Errorf("final state %v", res.State)
	}
}

func TestRun_EmbeddingFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.embedder.failOn = "Berlin is the capital of Germany."
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, scenarioDoc), "q")
	var se *domain.StageError
	if !errors.As(err, &se) || se.Stage != "embed" {
		t.Fatalf("expected embed stage error, got %v", err)
	}
	if res.State != Failed {
		t.Errorf("final state %v", res.State)
	}
	if h.indexes.created.Load() != 0 || len(h.gen.prompts) != 0 {
		t.Error("no index or generation expected after embed failure")
	}
}

func TestRun_TopKOptions(t *testing.T) {
	doc := "Cats purr.\n\nDogs bark.\n\nCats nap in the sun.\n\nBirds sing.\n\nCats chase mice."
	h := newHarness(WithTopK(4, 1))
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, doc), "Where do cats nap?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 4 || len(res.Reranked) != 1 {
		t.Errorf("got %d candidates, %d reranked", len(res.Candidates), len(res.Reranked))
	}
	if res.Reranked[0].Text != "Cats nap in the sun." {
		t.Errorf("unexpected top passage %q", res.Reranked[0].Text)
	}
}

func TestRun_ConcurrentEmbeddingMatchesSequential(t *testing.T) {
	doc := "Alpha one.\n\nBeta two.\n\nGamma three.\n\nDelta four.\n\nEpsilon five.\n\nAlpha again."
	path := writeDoc(t, doc)

	seq, err := newHarness().pipeline.Run(context.Background(), path, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	par, err := newHarness(WithConcurrency(4)).pipeline.Run(context.Background(), path, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seq.Candidates, par.Candidates) || !reflect.DeepEqual(seq.Reranked, par.Reranked) {
		t.Errorf("parallel embedding changed results:\nseq %v\npar %v", seq.Reranked, par.Reranked)
	}
}

func TestRun_Idempotent(t *testing.T) {
	path := writeDoc(t, scenarioDoc)
	h := newHarness()
	first, err := h.pipeline.Run(context.Background(), path, "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.pipeline.Run(context.Background(), path, "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Candidates, second.Candidates) || !reflect.DeepEqual(first.Reranked, second.Reranked) {
		t.Error("orderings differ between runs")
	}
	if h.indexes.created.Load() != 2 || h.indexes.closed.Load() != 2 {
		t.Errorf("each run should use its own index")
	}
}

func TestStateString(t *testing.T) {
	if Reranked.String() != "reranked" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if !Failed.Terminal() || Indexed.Terminal() {
		t.Error("unexpected terminal states")
	}
}

func TestRun_StopwordOnlyDocumentAnswers(t *testing.T) {
	h := newHarness()
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, "This is it.\n\nIt was the."), "Is this it?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != Answered || len(res.Reranked) != 2 {
		t.Fatalf("state %v with %d passages", res.State, len(res.Reranked))
	}
	if res.Candidates[0].Text != "This is it." {
		t.Errorf("expected first chunk ranked first, got %q", res.Candidates[0].Text)
	}
}

func TestRun_PunctuationOnlyDocumentAnswers(t *testing.T) {
	h := newHarness()
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, "!!!\n\n..."), "Why?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != Answered || len(res.Candidates) != 2 {
		t.Fatalf("state %v with %d candidates", res.State, len(res.Candidates))
	}
	if res.Candidates[0].ID != 0 || res.Candidates[1].ID != 1 {
		t.Errorf("equal scores should keep id order: %+v", res.Candidates)
	}
}

func TestRun_UnknownQueryTermsStillRetrieve(t *testing.T) {
	h := newHarness()
	res, err := h.pipeline.Run(context.Background(), writeDoc(t, scenarioDoc), "Why?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 2 || res.State != Answered {
		t.Fatalf("state %v with %d candidates", res.State, len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if c.Score <= 0 {
			t.Errorf("uniform query vector should score every chunk, got %+v", c)
		}
	}
}

func TestRun_ObserverSeesChunksWhenLoaded(t *testing.T) {
	var loadedChunks = -1
	h := newHarness(WithObserver(func(s State, res *Result) {
		if s == Loaded {
			loadedChunks = len(res.Chunks)
		}
	}))
	if _, err := h.pipeline.Run(context.Background(), writeDoc(t, scenarioDoc), "q"); err != nil {
		t.Fatal(err)
	}
	if loadedChunks != 2 {
		t.Errorf("observer saw %d chunks at Loaded, want 2", loadedChunks)
	}
}
