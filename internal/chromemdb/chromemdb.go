package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

// Options configures the embedded vector store.
type Options struct {
	Path          string
	Collection    string
	InMemory      bool
	Compress      bool
	EncryptionKey string // optional, 32 bytes, only used for snapshots
	Timeout       time.Duration
}

// VectorDBManager keeps fragment vectors in a chromem-go collection. Search and
// Count share a read lock; Upsert, Clear and Import are exclusive.
type VectorDBManager struct {
	mu            sync.RWMutex
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	compress      bool
	encryptionKey string
	timeout       time.Duration
	filePath      string
}

// NewVectorDBManager opens (or creates) the persistent database under opts.Path
// and the named collection inside it.
func NewVectorDBManager(opts Options) (*VectorDBManager, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", models.ErrConfiguration)
	}
	var db *chromem.DB
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %v", models.ErrIndexUnavailable, err)
		}
	}

	c, err := db.GetOrCreateCollection(opts.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrIndexUnavailable, err)
	}

	m := &VectorDBManager{
		db:            db,
		collection:    c,
		name:          opts.Collection,
		compress:      opts.Compress,
		encryptionKey: opts.EncryptionKey,
		timeout:       opts.Timeout,
	}
	if opts.Path != "" {
		m.filePath = filepath.Join(opts.Path, opts.Collection+".chromem")
	}
	log.Debug().Str("collection", m.name).Str("path", opts.Path).Bool("in_memory", opts.InMemory).
		Int("count", c.Count()).Msg("Opened vector store")
	return m, nil
}

// Upsert adds entries or replaces them by fragment id. A replaced entry keeps
// its insertion sequence, so repeating an upsert changes neither Count nor the
// order of tied search results.
func (m *VectorDBManager) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	entries = models.LatestByID(entries)
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Fragment.ID == "" {
			return fmt.Errorf("%w: entry without id", models.ErrInvalidArgument)
		}
		if zeroVector(e.Vector) {
			return fmt.Errorf("%w: entry %s has an empty or zero vector", models.ErrInvalidArgument, e.Fragment.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	next := m.collection.Count()
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		meta := e.Fragment.Metadata()
		if existing, err := m.collection.GetByID(ctx, e.Fragment.ID); err == nil && existing.Metadata[models.MetaSeq] != "" {
			meta[models.MetaSeq] = existing.Metadata[models.MetaSeq]
		} else {
			meta[models.MetaSeq] = strconv.Itoa(next)
			next++
		}
		docs = append(docs, chromem.Document{
			ID:        e.Fragment.ID,
			Content:   e.Fragment.Text,
			Metadata:  meta,
			Embedding: e.Vector,
		})
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrIndexUnavailable, err)
	}
	log.Debug().Str("collection", m.name).Int("documents", len(docs)).Msg("Upserted documents")
	return nil
}

// Clear drops the collection and creates it again empty.
func (m *VectorDBManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked()
}

func (m *VectorDBManager) resetLocked() error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %v", models.ErrIndexUnavailable, err)
	}
	c, err := m.db.CreateCollection(m.name, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", models.ErrIndexUnavailable, err)
	}
	m.collection = c
	log.Debug().Str("collection", m.name).Msg("Cleared collection")
	return nil
}

// Search returns up to k fragments nearest to vector by cosine distance,
// closest first. Equal distances keep insertion order.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", models.ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.collection.Count()
	if n == 0 {
		return nil, nil
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	// chromem's heap does not order ties, so rank the whole collection here.
	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrIndexUnavailable, err)
	}

	type ranked struct {
		models.SearchResult
		seq int
	}
	hits := make([]ranked, len(results))
	for i, r := range results {
		seq, err := strconv.Atoi(r.Metadata[models.MetaSeq])
		if err != nil {
			seq = math.MaxInt
		}
		hits[i] = ranked{
			SearchResult: models.SearchResult{
				Fragment: models.FragmentFromMetadata(r.ID, r.Content, r.Metadata),
				Distance: Distance(r.Similarity),
			},
			seq: seq,
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.Fragment.ID < b.Fragment.ID
	})

	out := make([]models.SearchResult, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, h.SearchResult)
	}
	return out, nil
}

// Count returns the number of stored fragments.
func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count(), nil
}

// Distance converts a chromem cosine similarity into a cosine distance in [0, 2].
func Distance(similarity float32) float64 {
	d := 1 - float64(similarity)
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

// Export writes the collection to a single gob file, compressed and encrypted
// when configured. An empty path uses <store path>/<collection>.chromem.
func (m *VectorDBManager) Export(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = m.filePath
	}
	if path == "" {
		return "", fmt.Errorf("%w: export path is required for an in-memory store", models.ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Debug().Str("collection", m.name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.name); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return path, nil
}

// Import replaces the collection with the one stored in a snapshot file. The
// snapshot is decoded in a scratch database first so a bad file leaves the
// current collection untouched.
func (m *VectorDBManager) Import(ctx context.Context, path string) error {
	if path == "" {
		path = m.filePath
	}
	if path == "" {
		return fmt.Errorf("%w: import path is required for an in-memory store", models.ErrInvalidArgument)
	}

	scratch := chromem.NewDB()
	if err := scratch.ImportFromFile(path, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if scratch.GetCollection(m.name, nil) == nil {
		return fmt.Errorf("failed to import database: snapshot has no collection %q", m.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Dropping first removes persisted documents that the snapshot lacks.
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %v", models.ErrIndexUnavailable, err)
	}
	if err := m.db.ImportFromFile(path, m.encryptionKey, m.name); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to import database", models.ErrIndexUnavailable), err, m.resetLocked())
	}
	m.collection = m.db.GetCollection(m.name, nil)
	log.Info().Str("collection", m.name).Str("file", path).Int("count", m.collection.Count()).Msg("Imported collection")
	return nil
}

func (m *VectorDBManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func zeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
