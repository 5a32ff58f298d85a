package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TEIScorer calls a cross-encoder served behind a text-embeddings-inference
// compatible /rerank endpoint. One request scores the whole candidate list.
type TEIScorer struct {
	url    string
	apiKey string
	client *http.Client
}

type TEIConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewTEIScorer(cfg TEIConfig) *TEIScorer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TEIScorer{url: cfg.URL, apiKey: cfg.APIKey, client: &http.Client{Timeout: timeout}}
}

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (s *TEIScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{candidate})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch returns scores aligned with candidates; the server's ordering is ignored.
func (s *TEIScorer) ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error) {
	data, err := json.Marshal(teiRequest{Query: query, Texts: candidates, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling reranker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var results []teiResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("reranker returned no score for candidate %d", i)
		}
	}
	return scores, nil
}
