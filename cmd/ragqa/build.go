package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ragqa/internal/chunker"
	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/openai"
	"ragqa/internal/embedding/tfidf"
	"ragqa/internal/generator"
	genollama "ragqa/internal/generator/ollama"
	genopenai "ragqa/internal/generator/openai"
	"ragqa/internal/pipeline"
	"ragqa/internal/rerank"
	"ragqa/internal/vectorstore/memory"
	"ragqa/internal/vectorstore/pgvector"
	"ragqa/internal/vectorstore/qdrant"
)

// buildPipeline assembles the components selected by cfg. The returned
// cleanup releases shared connections and must be called once.
func buildPipeline(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, observer func(pipeline.State, *pipeline.Result)) (*pipeline.Pipeline, func(), error) {
	cleanup := func() {}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "paragraph", "":
		ch = chunker.NewParagraphChunker(cfg.Chunker.MaxSentences)
	default:
		return nil, cleanup, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    config.Seconds(oc.TimeoutSecs),
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, cleanup, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var newIndex domain.IndexFactory
	switch cfg.VectorStore.Type {
	case "memory", "":
		newIndex = memory.Factory
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		newIndex = qdrant.NewFactory(qdrant.Config{
			URL:              qc.URL,
			APIKey:           envOrEmpty(qc.APIKeyEnv),
			CollectionPrefix: qc.CollectionPrefix,
			Timeout:          config.Seconds(qc.TimeoutSecs),
		})
	case "pgvector":
		dsnEnv := cfg.VectorStore.PGVector.DSNEnv
		dsn := os.Getenv(dsnEnv)
		if dsn == "" {
			return nil, cleanup, fmt.Errorf("pgvector: missing DSN in env %s", dsnEnv)
		}
		db, err := pgvector.Open(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("pgvector: %w", err)
		}
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("closing database", zap.Error(err))
			}
		}
		newIndex = pgvector.NewFactory(db)
	default:
		return nil, cleanup, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var scorer domain.PairwiseScorer
	switch cfg.Reranker.Type {
	case "lexical", "":
		scorer = rerank.NewLexicalScorer()
	case "tei":
		tc := cfg.Reranker.TEI
		scorer = rerank.NewTEIScorer(rerank.TEIConfig{
			URL:     tc.URL,
			APIKey:  envOrEmpty(tc.APIKeyEnv),
			Timeout: config.Seconds(tc.TimeoutSecs),
		})
	default:
		cleanup()
		return nil, func() {}, fmt.Errorf("unknown reranker: %s", cfg.Reranker.Type)
	}

	var backend domain.Generator
	var genTimeout int
	switch cfg.Generator.Type {
	case "openai", "":
		gc := cfg.Generator.OpenAI
		client, err := genopenai.NewClient(genopenai.Config{
			BaseURL:     gc.BaseURL,
			APIKeyEnv:   gc.APIKeyEnv,
			Model:       gc.Model,
			Timeout:     config.Seconds(gc.TimeoutSecs),
			Temperature: gc.Temperature,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("generator: %w", err)
		}
		backend, genTimeout = client, gc.TimeoutSecs
	case "ollama":
		oc := cfg.Generator.Ollama
		backend = genollama.NewClient(oc.BaseURL, oc.Model, config.Seconds(oc.TimeoutSecs))
		genTimeout = oc.TimeoutSecs
	default:
		cleanup()
		return nil, func() {}, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}

	p := pipeline.New(ch, emb, newIndex, scorer, generator.New(backend, config.Seconds(genTimeout)),
		pipeline.WithLogger(logger),
		pipeline.WithObserver(observer),
		pipeline.WithTopK(cfg.Retriever.TopK, cfg.Reranker.TopK),
		pipeline.WithConcurrency(cfg.Embedder.Concurrency),
	)
	return p, cleanup, nil
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
