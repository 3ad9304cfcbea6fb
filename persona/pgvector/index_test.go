package pgvector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuzya/try.idea-validator/core"
)

var _ core.PersonaIndex = (*Index)(nil)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeRows struct {
	data []string
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}
func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.data[r.pos-1]
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return []any{r.data[r.pos-1]}, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeDB struct {
	sql      []string
	rows     []string
	queryErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.sql = append(f.sql, sql)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows}, nil
}

func TestNew_RejectsBadTable(t *testing.T) {
	_, err := New(&fakeDB{}, fakeEmbedder{}, func(o *Options) { o.Table = "personas; drop table x" })
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestIndex_Search(t *testing.T) {
	db := &fakeDB{rows: []string{"accountant, 52", "founder, 30"}}
	idx, err := New(db, fakeEmbedder{})
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), "bookkeeping", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"accountant, 52", "founder, 30"}, got)
	require.Len(t, db.sql, 1)
	assert.True(t, strings.Contains(db.sql[0], "ORDER BY embedding <-> $1"))
}

func TestIndex_SearchErrorsAreSearchErrors(t *testing.T) {
	idx, err := New(&fakeDB{}, fakeEmbedder{err: errors.New("no quota")})
	require.NoError(t, err)
	_, err = idx.Search(context.Background(), "q", 3)
	var se *core.SearchError
	assert.True(t, errors.As(err, &se))

	idx, err = New(&fakeDB{queryErr: errors.New("connection refused")}, fakeEmbedder{})
	require.NoError(t, err)
	_, err = idx.Search(context.Background(), "q", 3)
	assert.True(t, errors.As(err, &se))
}

func TestIndex_EnsureSchemaAndAdd(t *testing.T) {
	db := &fakeDB{}
	idx, err := New(db, fakeEmbedder{}, func(o *Options) { o.Table = "people" })
	require.NoError(t, err)

	require.NoError(t, idx.EnsureSchema(context.Background(), 3))
	require.NoError(t, idx.Add(context.Background(), "teacher who hates paperwork"))

	require.Len(t, db.sql, 3)
	assert.Contains(t, db.sql[1], "vector(3)")
	assert.Contains(t, db.sql[2], "INSERT INTO people")
}

func TestIndex_ZeroLimit(t *testing.T) {
	db := &fakeDB{}
	idx, err := New(db, fakeEmbedder{})
	require.NoError(t, err)
	got, err := idx.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, db.sql)
}
