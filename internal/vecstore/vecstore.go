package vecstore

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vitalhq/medsearch/internal/budget"
)

// Config controls the pgvector-backed document store.
type Config struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
}

// Chunk is one embedded slice of an ingested document.
type Chunk struct {
	ID        string
	Source    string
	Title     string
	Content   string
	Index     int
	Embedding []float32
}

// Scored pairs a retrieved document with its cosine distance (smaller is
// closer).
type Scored struct {
	Document budget.Document
	Distance float32
}

// Store is the offline-index collaborator: cmd/indexdocs writes into it and
// the retrieval pipeline reads from it when a request opts in.
type Store struct {
	cfg  Config
	pool *pgxpool.Pool
}

// New connects to Postgres and bootstraps the schema: vector extension,
// documents table, and an ivfflat cosine index.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.TableName == "" {
		cfg.TableName = "documents"
	}
	if cfg.VectorDim == 0 {
		cfg.VectorDim = 1024
	}
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = 5
	}
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &Store{cfg: cfg, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d)
		)`, s.cfg.TableName, s.cfg.VectorDim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, s.cfg.TableName, s.cfg.TableName)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert writes chunks in one transaction, replacing any previous content
// under the same id.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, title, content, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, s.cfg.TableName)

	for _, c := range chunks {
		_, err := tx.Exec(ctx, stmt,
			c.ID,
			c.Source,
			sanitizeUTF8(c.Title),
			sanitizeUTF8(c.Content),
			c.Index,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// Query returns the k nearest chunks to the embedding as scored documents.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]Scored, error) {
	if k <= 0 {
		k = s.cfg.SearchLimit
	}
	q := fmt.Sprintf(`
		SELECT source, title, content, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.cfg.TableName)

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var sc Scored
		if err := rows.Scan(&sc.Document.Meta.Source, &sc.Document.Meta.Title, &sc.Document.Content, &sc.Distance); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// sanitizeUTF8 drops invalid byte sequences Postgres would reject.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
