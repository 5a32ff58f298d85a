package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Concurrency int                   `yaml:"concurrency"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// VectorStoreConfig selects and configures the per-run vector index.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// PGVectorConfig names the environment variable holding the PostgreSQL DSN.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// RerankerConfig selects the pairwise scorer.
type RerankerConfig struct {
	Type string     `yaml:"type"`
	TopK int        `yaml:"top_k"`
	TEI  *TEIConfig `yaml:"tei,omitempty"`
}

// TEIConfig points at a text-embeddings-inference style /rerank endpoint.
type TEIConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeneratorConfig selects the generative-text backend.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig          `yaml:"ollama,omitempty"`
}

type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float32 `yaml:"temperature"`
}

type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Debug       bool              `yaml:"debug"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	Generator   GeneratorConfig   `yaml:"generator"`
}

// Load reads a config from a specified path. Fields the file leaves out keep
// their defaults; a missing file is an error matching os.ErrNotExist.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragqa/config.yaml.
// If neither exists it returns the defaults and an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return Default(), "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return Default(), "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragqa", "config.yaml"), nil
}

// Default returns the built-in configuration: everything local except the
// generator, which targets Gemini's OpenAI-compatible endpoint.
func Default() *AppConfig {
	cfg := &AppConfig{
		Chunker:     ChunkerConfig{Type: "paragraph"},
		Embedder:    EmbedderConfig{Type: "tfidf", Concurrency: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retriever:   RetrieverConfig{TopK: 5},
		Reranker:    RerankerConfig{Type: "lexical", TopK: 3},
		Generator:   GeneratorConfig{Type: "openai"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// Validate rejects unknown component types.
func (c *AppConfig) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"chunker.type", c.Chunker.Type, []string{"paragraph"}},
		{"embedder.type", c.Embedder.Type, []string{"tfidf", "openai"}},
		{"vector_store.type", c.VectorStore.Type, []string{"memory", "qdrant", "pgvector"}},
		{"reranker.type", c.Reranker.Type, []string{"lexical", "tei"}},
		{"generator.type", c.Generator.Type, []string{"openai", "ollama"}},
	}
	for _, ch := range checks {
		if !contains(ch.allowed, ch.value) {
			return fmt.Errorf("unknown %s %q (want one of %v)", ch.field, ch.value, ch.allowed)
		}
	}
	if c.Chunker.MaxSentences < 0 {
		return fmt.Errorf("chunker.max_sentences must not be negative")
	}
	return nil
}

// Seconds converts a timeout_secs field to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "paragraph"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Concurrency <= 0 {
		cfg.Embedder.Concurrency = 1
	}
	if cfg.Retriever.TopK <= 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "lexical"
	}
	if cfg.Reranker.TopK <= 0 {
		cfg.Reranker.TopK = 3
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}

	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		e := cfg.Embedder.OpenAI
		if e.BaseURL == "" {
			e.BaseURL = "https://api.openai.com/v1"
		}
		if e.APIKeyEnv == "" {
			e.APIKeyEnv = "OPENAI_API_KEY"
		}
		if e.Model == "" {
			e.Model = "text-embedding-3-small"
		}
		if e.TimeoutSecs == 0 {
			e.TimeoutSecs = 30
		}
		if e.MaxRetries == 0 {
			e.MaxRetries = 3
		}
	}

	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "ragqa"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 10
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		if cfg.VectorStore.PGVector.DSNEnv == "" {
			cfg.VectorStore.PGVector.DSNEnv = "DATABASE_URL"
		}
	}

	if cfg.Reranker.Type == "tei" {
		if cfg.Reranker.TEI == nil {
			cfg.Reranker.TEI = &TEIConfig{}
		}
		if cfg.Reranker.TEI.URL == "" {
			cfg.Reranker.TEI.URL = "http://localhost:8080"
		}
		if cfg.Reranker.TEI.TimeoutSecs == 0 {
			cfg.Reranker.TEI.TimeoutSecs = 30
		}
	}

	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		g := cfg.Generator.OpenAI
		if g.BaseURL == "" {
			g.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-2.5-flash"
		}
		if g.TimeoutSecs == 0 {
			g.TimeoutSecs = 60
		}
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		o := cfg.Generator.Ollama
		if o.BaseURL == "" {
			o.BaseURL = "http://localhost:11434"
		}
		if o.Model == "" {
			o.Model = "llama3.2"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 300
		}
	}
}
