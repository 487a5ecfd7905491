package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/pgdriver"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

func TestVectorValueAndScan(t *testing.T) {
	v, err := Vector{1, -0.5, 0.25}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,-0.5,0.25]", v)

	nilValue, err := Vector(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)

	var got Vector
	require.NoError(t, got.Scan([]byte("[1, -0.5,0.25]")))
	assert.Equal(t, Vector{1, -0.5, 0.25}, got)
	require.NoError(t, got.Scan("[]"))
	assert.Empty(t, got)
	require.NoError(t, got.Scan(nil))
	assert.Nil(t, got)

	assert.Error(t, got.Scan("1,2"))
	assert.Error(t, got.Scan("[1,x]"))
	assert.Error(t, got.Scan(42))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN("postgres://postgres@localhost:5432/loans?sslmode=disable")))
	s := NewStore(NewDB(sqldb, false), 0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchQuery(t *testing.T) {
	s := newTestStore(t)
	var rows []FragmentRow
	got := s.searchQuery(&rows, []float32{0.5, 1}, 3).String()
	assert.Equal(t,
		`SELECT "f"."id", "f"."text", "f"."label", "f"."position", "f"."total", f.embedding <=> '[0.5,1]'::vector AS distance `+
			`FROM "fragments" AS "f" ORDER BY distance ASC, f.seq ASC LIMIT 3`,
		got)
}

func TestUpsertQueryKeepsSeq(t *testing.T) {
	s := newTestStore(t)
	rows := []FragmentRow{{ID: "chunk_0000", Text: "home loan", Label: "Home Loan", Total: 1, Embedding: Vector{1, 0}}}
	got := s.upsertQuery(&rows).String()
	assert.Contains(t, got, `INSERT INTO "fragments" AS "f" ("id", "text", "label", "position", "total", "embedding")`)
	assert.Contains(t, got, `'[1,0]'`)
	assert.Contains(t, got, `ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text`)
	assert.NotContains(t, got, `"seq"`)
	assert.NotContains(t, got, `"distance"`)
}

func TestStoreValidatesArguments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Search(ctx, []float32{1}, 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = s.Search(ctx, nil, 3)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	err = s.Upsert(ctx, []models.IndexEntry{{Fragment: models.Fragment{ID: "chunk_0000", Text: "x"}}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.NoError(t, s.Upsert(ctx, nil))
}

func TestConnectDB(t *testing.T) {
	_, err := ConnectDB(&config.DatabaseConfig{})
	assert.ErrorIs(t, err, models.ErrConfiguration)
	_, err = ConnectDB(&config.DatabaseConfig{URL: "postgres://localhost/loans", Driver: "mysql"})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	for _, driver := range []string{"pq", "pgdriver"} {
		sqldb, err := ConnectDB(&config.DatabaseConfig{URL: "postgres://postgres@localhost:5432/loans?sslmode=disable", Driver: driver})
		require.NoError(t, err, driver)
		require.NoError(t, sqldb.Close())
	}
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL(384)
	assert.Contains(t, sql, "embedding vector(384) NOT NULL")
	assert.Contains(t, sql, "seq BIGSERIAL")
}

func TestClampDistance(t *testing.T) {
	assert.Equal(t, 0.0, clampDistance(-1e-9))
	assert.Equal(t, 0.75, clampDistance(0.75))
	assert.Equal(t, 2.0, clampDistance(2.5))
}

func TestSchemaAction(t *testing.T) {
	for _, tc := range []struct {
		name           string
		existing, want int
		recreate, drop bool
		fails          bool
	}{
		{"no table", 0, 384, false, false, false},
		{"same dimension", 384, 384, true, false, false},
		{"changed dimension on query", 384, 768, false, false, true},
		{"changed dimension on rebuild", 384, 768, true, true, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			drop, err := schemaAction(tc.existing, tc.want, tc.recreate)
			assert.Equal(t, tc.drop, drop)
			if tc.fails {
				assert.ErrorIs(t, err, models.ErrIndexUnavailable)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSchemaQueries(t *testing.T) {
	s := newTestStore(t)

	q, err := dimensionQuery(s.db).AppendQuery(s.db.Formatter(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(q), `attrelid = to_regclass('fragments') AND attname = 'embedding'`)

	q, err = dropQuery(s.db).AppendQuery(s.db.Formatter(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(q), `DROP TABLE IF EXISTS "fragments"`)
}

func TestInitDBRejectsBadDimension(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, InitDB(context.Background(), s.db, 0, true), models.ErrConfiguration)
}
