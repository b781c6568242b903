// Package index defines the capability set shared by the three Lynx index
// algorithms and the factory that builds one from a configuration.
package index

import (
	"fmt"
	"io"

	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/index/flat"
	"github.com/lynxdb/lynx/pkg/index/hnsw"
	"github.com/lynxdb/lynx/pkg/index/ivf"
)

// Index is the contract every algorithm implements. Flat and the database
// wrappers rely only on this surface; callers needing algorithm-specific
// behavior construct the concrete types directly.
//
// Implementations are individually thread-safe (internal reader-writer
// locks) so they can be used standalone; under the database's exclusive
// lock the inner lock is uncontended.
type Index interface {
	// Type identifies the algorithm.
	Type() core.IndexType

	// Add inserts one vector. Adding an id that is already present fails
	// with InvalidState.
	Add(id uint64, vector []float32) error

	// Remove deletes one vector, reporting VectorNotFound if absent.
	Remove(id uint64) error

	// Contains reports whether an id is indexed.
	Contains(id uint64) bool

	// Search returns the k nearest neighbors of the query. params may be
	// nil. QueryTimeMs is left zero; the database layer owns timing.
	Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error)

	// Build replaces the entire contents with the given records.
	// Duplicate ids within the batch are rejected. An empty batch clears
	// the index.
	Build(records []core.VectorRecord) error

	// Optimize reconstructs internal structure for search quality. It is
	// a no-op for algorithms that have nothing to rebuild.
	Optimize() error

	// Serialize writes the binary snapshot of the index.
	Serialize(w io.Writer) error

	// Deserialize replaces the contents from a binary snapshot.
	Deserialize(r io.Reader) error

	// Vector returns a copy of the stored vector for an id.
	Vector(id uint64) ([]float32, bool)

	// Size returns the number of indexed vectors.
	Size() int

	// Dimension returns the configured vector length.
	Dimension() int

	// MemoryUsage estimates resident bytes of the index structures.
	MemoryUsage() int64
}

// New constructs the index selected by the configuration.
func New(cfg config.Config) (Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.IndexType {
	case core.IndexFlat:
		return flat.New(cfg.Dimension, cfg.DistanceMetric), nil
	case core.IndexHNSW:
		return hnsw.New(hnsw.Config{
			Dimension:      cfg.Dimension,
			Metric:         cfg.DistanceMetric,
			M:              cfg.HNSW.M,
			EfConstruction: cfg.HNSW.EfConstruction,
			EfSearch:       cfg.HNSW.EfSearch,
			MaxElements:    cfg.HNSW.MaxElements,
			RandomSeed:     cfg.HNSW.RandomSeed,
		})
	case core.IndexIVF:
		return ivf.New(ivf.Config{
			Dimension: cfg.Dimension,
			Metric:    cfg.DistanceMetric,
			NClusters: cfg.IVF.NClusters,
			NProbe:    cfg.IVF.NProbe,
			Seed:      cfg.HNSW.RandomSeed,
		})
	default:
		return nil, fmt.Errorf("%w: unknown index type %d", core.ErrInvalidParameter, cfg.IndexType)
	}
}
