package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"ragqa/internal/domain"
)

// Storage is a minimal REST client to Qdrant holding one run's collection.
// The collection uses dot-product distance and is dropped on Close.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

// NewFactory returns an IndexFactory that creates a uniquely named collection per call.
func NewFactory(cfg Config) domain.IndexFactory {
	return func(ctx context.Context, dimension int) (domain.VectorIndex, error) {
		s := NewStorage(cfg)
		if err := s.Init(ctx, dimension); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "ragqa"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: prefix + "-" + uuid.NewString(),
		client:     &http.Client{Timeout: timeout},
	}
}

// Collection returns the name of the collection backing this run.
func (s *Storage) Collection() string { return s.collection }

// Init creates the collection for vectors of the given dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Dot",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) Insert(ctx context.Context, id int, vector []float64, text string) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  vector,
			"payload": map[string]any{"text": text},
		}},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

// Query returns at most k results ordered by descending score, then ascending
// id. Qdrant does not define an order for equal scores, so the search limit is
// widened until no entry tied with the k-th result can be left outside it.
func (s *Storage) Query(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := k + 1
	for {
		results, err := s.search(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].ID < results[j].ID
		})
		if len(results) < limit || len(results) <= k || results[len(results)-1].Score < results[k-1].Score {
			if k < len(results) {
				results = results[:k]
			}
			return results, nil
		}
		limit *= 2
	}
}

func (s *Storage) search(ctx context.Context, vector []float64, limit int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      int     `json:"id"`
			Score   float64 `json:"score"`
			Payload struct {
				Text string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{ID: r.ID, Text: r.Payload.Text, Score: r.Score})
	}
	return results, nil
}

// Close drops the run's collection.
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	return s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
