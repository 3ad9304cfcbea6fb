// Package pgvector provides a core.PersonaIndex backed by PostgreSQL with the
// pgvector extension. Persona descriptions are embedded on insert and ranked
// by L2 distance to the embedded query.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "personas"

var tablePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

// Embedder turns text into a vector. model/openai.Embedder implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier is the subset of *pgxpool.Pool the index uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Options configures an Index.
type Options struct {
	Table  string
	Logger logging.Logger
}

// Index is a pgvector-backed persona index.
type Index struct {
	db       Querier
	embedder Embedder
	table    string
	logger   logging.Logger
	close    func()
}

// New wraps an existing connection.
func New(db Querier, embedder Embedder, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{Table: DefaultTable, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !tablePattern.MatchString(opts.Table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, opts.Table)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Index{db: db, embedder: embedder, table: opts.Table, logger: opts.Logger, close: func() {}}, nil
}

// Connect opens a connection pool for url and wraps it. Close releases it.
func Connect(ctx context.Context, url string, embedder Embedder, optFns ...func(o *Options)) (*Index, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	idx, err := New(pool, embedder, optFns...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	idx.close = pool.Close
	return idx, nil
}

// Close releases the pool opened by Connect. It is a no-op for New.
func (i *Index) Close() { i.close() }

// EnsureSchema creates the extension and table for vectors of size dim.
func (i *Index) EnsureSchema(ctx context.Context, dim int) error {
	if _, err := i.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id bigserial PRIMARY KEY, content text NOT NULL, embedding vector(%d))", i.table, dim)
	if _, err := i.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", i.table, err)
	}
	return nil
}

// Add embeds text and stores it.
func (i *Index) Add(ctx context.Context, text string) error {
	emb, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed persona: %w", err)
	}
	_, err = i.db.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (content, embedding) VALUES ($1, $2)", i.table),
		text, pgvector.NewVector(emb))
	return err
}

// Search implements core.PersonaIndex.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	emb, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &core.SearchError{Query: query, Cause: fmt.Errorf("embed query: %w", err)}
	}

	rows, err := i.db.Query(ctx,
		fmt.Sprintf("SELECT content FROM %s ORDER BY embedding <-> $1 LIMIT $2", i.table),
		pgvector.NewVector(emb), limit)
	if err != nil {
		return nil, &core.SearchError{Query: query, Cause: fmt.Errorf("query failed: %w", err)}
	}
	defer rows.Close()

	results := make([]string, 0, limit)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, &core.SearchError{Query: query, Cause: err}
		}
		results = append(results, content)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.SearchError{Query: query, Cause: err}
	}

	i.logger.Debug("pgvector search returned %d personas", len(results))
	return results, nil
}
