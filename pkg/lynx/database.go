// Package lynx is the public surface of the Lynx vector database: an
// in-process store of fixed-dimension float32 embeddings answering top-k
// similarity queries through a pluggable index (Flat, HNSW, or IVF).
//
// A DB owns the authoritative id-to-record map and delegates search to
// its index. One reader-writer lock serializes writers against readers;
// statistics counters are atomics; query statistics are updated outside
// the critical section.
package lynx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/index"
	"github.com/lynxdb/lynx/pkg/observability"
)

// Version is the library version string.
const Version = "1.2.0"

// VectorDatabase is the abstract database handle returned by New.
type VectorDatabase interface {
	Insert(record core.VectorRecord) error
	Remove(id uint64) error
	Contains(id uint64) bool
	Get(id uint64) (*core.VectorRecord, error)
	Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error)
	BatchInsert(records []core.VectorRecord) error
	Size() int
	Dimension() int
	Stats() core.DatabaseStats
	Config() config.Config
	Flush() error
	Save() error
	Load() error
	AllRecords() *RecordIterator
	OptimizeIndex() error
	Close() error
	Version() string
}

// DB is the unified database. Both the record map and the index hold the
// raw vector: the duplication roughly doubles memory but separates
// "record with metadata" from "searchable embedding" and lets iteration
// avoid index traversal.
type DB struct {
	cfg    config.Config
	logger *observability.Logger

	mu      sync.RWMutex
	idx     index.Index
	vectors map[uint64]core.VectorRecord

	totalInserts     atomic.Uint64
	totalQueries     atomic.Uint64
	totalQueryTimeNs atomic.Uint64

	// Non-blocking maintenance state (see maintenance.go).
	logEnabled    atomic.Bool
	wlog          writeLog
	maintenanceMu sync.Mutex
}

// Option customizes database construction.
type Option func(*DB)

// WithLogger attaches a structured logger. A nil logger keeps the
// database silent.
func WithLogger(l *observability.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// New builds a database from the configuration. The concrete index is
// chosen by cfg.IndexType.
func New(cfg config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx, err := index.New(cfg)
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:     cfg,
		idx:     idx,
		vectors: make(map[uint64]core.VectorRecord),
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger != nil {
		db.logger.Info("database created", map[string]interface{}{
			"dimension": cfg.Dimension,
			"index":     cfg.IndexType.String(),
			"metric":    cfg.DistanceMetric.String(),
		})
	}
	return db, nil
}

// Insert stores one record and indexes its vector. Duplicate ids are
// rejected with InvalidParameter; an index failure rolls the record back.
func (db *DB) Insert(record core.VectorRecord) error {
	if len(record.Vector) != db.cfg.Dimension {
		return fmt.Errorf("%w: vector has dimension %d, database wants %d",
			core.ErrDimensionMismatch, len(record.Vector), db.cfg.Dimension)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.vectors[record.ID]; exists {
		return fmt.Errorf("%w: id %d already present", core.ErrInvalidParameter, record.ID)
	}

	stored := record.Clone()
	db.vectors[record.ID] = stored
	if err := db.idx.Add(record.ID, stored.Vector); err != nil {
		delete(db.vectors, record.ID)
		return err
	}

	db.totalInserts.Add(1)
	if db.logEnabled.Load() {
		db.wlog.appendInsert(record.ID, stored.Vector)
	}
	return nil
}

// Remove deletes the record and its index entry.
func (db *DB) Remove(id uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.vectors[id]; !exists {
		return fmt.Errorf("%w: id %d", core.ErrVectorNotFound, id)
	}
	if err := db.idx.Remove(id); err != nil {
		return err
	}
	delete(db.vectors, id)

	if db.logEnabled.Load() {
		db.wlog.appendRemove(id)
	}
	return nil
}

// Contains reports whether an id is stored.
func (db *DB) Contains(id uint64) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.vectors[id]
	return ok
}

// Get returns a copy of the record for an id.
func (db *DB) Get(id uint64) (*core.VectorRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, ok := db.vectors[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", core.ErrVectorNotFound, id)
	}
	out := rec.Clone()
	return &out, nil
}

// Search returns the k nearest neighbors of the query. A query of the
// wrong dimension yields an empty result, not an error; callers wanting
// a diagnostic must validate before the call.
func (db *DB) Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error) {
	start := time.Now()

	if len(query) != db.cfg.Dimension {
		return &core.SearchResult{}, nil
	}

	db.mu.RLock()
	result, err := db.idx.Search(query, k, params)
	db.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// Capture the candidate count before the items move on to the
	// caller; the count must describe this result, not a later view.
	if result.TotalCandidates == 0 && len(result.Items) > 0 {
		result.TotalCandidates = uint64(len(result.Items))
	}

	elapsed := time.Since(start)
	result.QueryTimeMs = float64(elapsed.Nanoseconds()) / 1e6
	db.totalQueries.Add(1)
	db.totalQueryTimeNs.Add(uint64(elapsed.Nanoseconds()))
	return result, nil
}

// Size returns the number of stored records.
func (db *DB) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vectors)
}

// Dimension returns the configured vector length.
func (db *DB) Dimension() int { return db.cfg.Dimension }

// Config returns the construction configuration.
func (db *DB) Config() config.Config { return db.cfg }

// Version returns the library version.
func (db *DB) Version() string { return Version }

// Stats snapshots the database counters.
func (db *DB) Stats() core.DatabaseStats {
	db.mu.RLock()
	count := len(db.vectors)
	indexMem := db.idx.MemoryUsage()
	var recordMem int64
	for _, rec := range db.vectors {
		const recordOverhead = 64
		recordMem += int64(len(rec.Vector))*4 + int64(len(rec.Metadata)) + recordOverhead
	}
	db.mu.RUnlock()

	queries := db.totalQueries.Load()
	var avgMs float64
	if queries > 0 {
		avgMs = float64(db.totalQueryTimeNs.Load()) / 1e6 / float64(queries)
	}

	return core.DatabaseStats{
		VectorCount:      uint64(count),
		Dimension:        db.cfg.Dimension,
		MemoryUsageBytes: recordMem + indexMem,
		IndexMemoryBytes: indexMem,
		AvgQueryTimeMs:   avgMs,
		TotalQueries:     queries,
		TotalInserts:     db.totalInserts.Load(),
	}
}

// Close releases the database. The handle must not be used afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.vectors = nil
	db.idx = nil
	return nil
}

// RecordIterator walks all records while holding the database's shared
// lock: writes block until Close is called, and the iterator must not
// outlive the database.
type RecordIterator struct {
	db     *DB
	ids    []uint64
	pos    int
	closed bool
}

// AllRecords acquires the shared lock and returns an iterator over every
// record. The caller owns the lock until Close.
func (db *DB) AllRecords() *RecordIterator {
	db.mu.RLock()
	ids := make([]uint64, 0, len(db.vectors))
	for id := range db.vectors {
		ids = append(ids, id)
	}
	return &RecordIterator{db: db, ids: ids}
}

// Next returns the next record, or false when the iteration is done.
func (it *RecordIterator) Next() (core.VectorRecord, bool) {
	if it.closed || it.pos >= len(it.ids) {
		return core.VectorRecord{}, false
	}
	rec := it.db.vectors[it.ids[it.pos]]
	it.pos++
	return rec.Clone(), true
}

// Close releases the shared lock. It is safe to call more than once.
func (it *RecordIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.db.mu.RUnlock()
}
