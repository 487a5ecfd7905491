package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

// FragmentRow is one indexed fragment. Seq is assigned by the database on
// first insert and breaks distance ties.
type FragmentRow struct {
	bun.BaseModel `bun:"table:fragments,alias:f"`
	ID            string  `bun:"id,pk"`
	Seq           int64   `bun:"seq,scanonly"`
	Text          string  `bun:"text,notnull"`
	Label         string  `bun:"label,notnull"`
	Position      int     `bun:"position,notnull"`
	Total         int     `bun:"total,notnull"`
	Embedding     Vector  `bun:"embedding,notnull"`
	Distance      float64 `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithEnabled(debug), bundebug.WithVerbose(true)))
	return db
}

// ConnectDB opens a pool with pgdriver, or lib/pq when cfg.Driver is "pq".
// No connection is made until the first query.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: database url is empty", models.ErrConfiguration)
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.URL)
	case "", "pgdriver":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrConfiguration, cfg.Driver)
	}
}

// InitDB enables pgvector and creates the fragments table for the given
// dimension. An existing table with another vector dimension is dropped when
// recreate is set and reported as ErrIndexUnavailable otherwise.
func InitDB(ctx context.Context, db *bun.DB, dimension int, recreate bool) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: vector dimension must be positive", models.ErrConfiguration)
	}
	existing, err := ColumnDimension(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: failed to inspect fragments table: %v", models.ErrIndexUnavailable, err)
	}
	drop, err := schemaAction(existing, dimension, recreate)
	if err != nil {
		return err
	}
	if drop {
		log.Warn().Int("old", existing).Int("new", dimension).Msg("Vector dimension changed, recreating fragments table")
		if err := DropFragments(ctx, db); err != nil {
			return fmt.Errorf("%w: failed to drop fragments table: %v", models.ErrIndexUnavailable, err)
		}
	}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: failed to enable pgvector: %v", models.ErrIndexUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(dimension)); err != nil {
		return fmt.Errorf("%w: failed to create fragments table: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// ColumnDimension returns the declared dimension of fragments.embedding, or 0
// when the table does not exist yet. pgvector keeps the dimension in atttypmod.
func ColumnDimension(ctx context.Context, db *bun.DB) (int, error) {
	var dim int
	err := dimensionQuery(db).Scan(ctx, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return max(dim, 0), nil
}

func dimensionQuery(db *bun.DB) *bun.RawQuery {
	return db.NewRaw(`SELECT atttypmod FROM pg_attribute
WHERE attrelid = to_regclass(?) AND attname = ? AND NOT attisdropped`, "fragments", "embedding")
}

// schemaAction decides whether a table declared with existing dimensions can
// serve vectors of want dimensions. existing is 0 when there is no table.
func schemaAction(existing, want int, recreate bool) (drop bool, err error) {
	if existing == 0 || existing == want {
		return false, nil
	}
	if !recreate {
		return false, fmt.Errorf("%w: fragments.embedding is vector(%d) but the embedder produces %d dimensions, run build-index to recreate it",
			models.ErrIndexUnavailable, existing, want)
	}
	return true, nil
}

func createTableSQL(dimension int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fragments (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	text TEXT NOT NULL,
	label TEXT NOT NULL,
	position INTEGER NOT NULL,
	total INTEGER NOT NULL,
	embedding vector(%d) NOT NULL
)`, dimension)
}

// DropFragments removes the fragments table.
func DropFragments(ctx context.Context, db *bun.DB) error {
	_, err := dropQuery(db).Exec(ctx)
	return err
}

func dropQuery(db *bun.DB) *bun.DropTableQuery {
	return db.NewDropTable().Model((*FragmentRow)(nil)).IfExists()
}

// Store is the pgvector implementation of the vector index.
type Store struct {
	mu      sync.RWMutex
	db      *bun.DB
	timeout time.Duration
}

func NewStore(db *bun.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts fragments or updates them in place; an updated row keeps its seq.
func (s *Store) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	entries = models.LatestByID(entries)
	if len(entries) == 0 {
		return nil
	}
	rows := make([]FragmentRow, len(entries))
	for i, e := range entries {
		if e.Fragment.ID == "" || len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %d has no id or vector", models.ErrInvalidArgument, i)
		}
		rows[i] = FragmentRow{
			ID:        e.Fragment.ID,
			Text:      e.Fragment.Text,
			Label:     e.Fragment.SourceLabel,
			Position:  e.Fragment.Position,
			Total:     e.Fragment.Total,
			Embedding: e.Vector,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.upsertQuery(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("%w: failed to upsert fragments: %v", models.ErrIndexUnavailable, err)
	}
	log.Debug().Int("documents", len(rows)).Msg("Upserted fragments")
	return nil
}

func (s *Store) upsertQuery(rows *[]FragmentRow) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(rows).
		On("CONFLICT (id) DO UPDATE").
		Set("text = EXCLUDED.text").
		Set("label = EXCLUDED.label").
		Set("position = EXCLUDED.position").
		Set("total = EXCLUDED.total").
		Set("embedding = EXCLUDED.embedding")
}

// Clear empties the table and restarts the seq counter.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.NewTruncateTable().Model((*FragmentRow)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("%w: failed to truncate fragments: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Search orders by pgvector's cosine distance operator, then by seq.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", models.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []FragmentRow
	if err := s.searchQuery(&rows, vector, k).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to search fragments: %v", models.ErrIndexUnavailable, err)
	}

	out := make([]models.SearchResult, len(rows))
	for i, r := range rows {
		label := r.Label
		if label == "" {
			label = models.DefaultLabel
		}
		out[i] = models.SearchResult{
			Fragment: models.Fragment{
				ID:          r.ID,
				Text:        r.Text,
				SourceLabel: label,
				Position:    r.Position,
				Total:       r.Total,
			},
			Distance: clampDistance(r.Distance),
		}
	}
	return out, nil
}

func (s *Store) searchQuery(rows *[]FragmentRow, vector []float32, k int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		Column("id", "text", "label", "position", "total").
		ColumnExpr("f.embedding <=> ?::vector AS distance", Vector(vector)).
		OrderExpr("distance ASC, f.seq ASC").
		Limit(k)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.db.NewSelect().Model((*FragmentRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count fragments: %v", models.ErrIndexUnavailable, err)
	}
	return n, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func clampDistance(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 2
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
