// Package pgvector stores a run's vectors in a PostgreSQL temporary table
// using the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"ragqa/internal/domain"
)

const table = "ragqa_chunks"

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Index holds one pinned connection; the temporary table lives as long as it does.
type Index struct {
	conn      *sql.Conn
	dimension int
}

// NewFactory returns an IndexFactory creating a temporary table per call on db.
func NewFactory(db *sql.DB) domain.IndexFactory {
	return func(ctx context.Context, dimension int) (domain.VectorIndex, error) {
		return New(ctx, db, dimension)
	}
}

// New pins a connection from db and creates the temporary table on it.
func New(ctx context.Context, db *sql.DB, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	idx := &Index{conn: conn, dimension: dimension}
	if err := idx.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (s *Index) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`DROP TABLE IF EXISTS pg_temp.%s`, table),
		fmt.Sprintf(`CREATE TEMP TABLE %s (
			id INTEGER PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, table, s.dimension),
	}
	for _, m := range migrations {
		if _, err := s.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

func (s *Index) Insert(ctx context.Context, id int, vector []float64, text string) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	_, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, content, embedding) VALUES ($1, $2, $3)`, table),
		id, text, pgvector.NewVector(toFloat32(vector)))
	if err != nil {
		return fmt.Errorf("insert chunk %d: %w", id, err)
	}
	return nil
}

// Query orders by negative inner product (<#>), ties by ascending id.
func (s *Index) Query(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, -(embedding <#> $1) AS score
		FROM %s
		ORDER BY embedding <#> $1, id
		LIMIT $2`, table), pgvector.NewVector(toFloat32(vector)), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.ID, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close drops the table and returns the connection to the pool.
func (s *Index) Close() error {
	_, dropErr := s.conn.ExecContext(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS pg_temp.%s`, table))
	return errors.Join(dropErr, s.conn.Close())
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
