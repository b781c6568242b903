// Package flat implements the exact brute-force index: a plain id-to-
// vector map scanned in full on every query. It is the recall baseline
// the approximate indexes are measured against.
package flat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

// Index is the exact index. All operations are guarded by an internal
// reader-writer lock so the index is safe to use standalone.
type Index struct {
	dimension int
	metric    core.DistanceMetric

	mu      sync.RWMutex
	vectors map[uint64][]float32
}

// New creates an empty flat index.
func New(dimension int, metric core.DistanceMetric) *Index {
	return &Index{
		dimension: dimension,
		metric:    metric,
		vectors:   make(map[uint64][]float32),
	}
}

// Type identifies the algorithm.
func (idx *Index) Type() core.IndexType { return core.IndexFlat }

// Add inserts one vector. The vector is copied.
func (idx *Index) Add(id uint64, vector []float32) error {
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vector), idx.dimension)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[id]; exists {
		return fmt.Errorf("%w: id %d already indexed", core.ErrInvalidState, id)
	}
	idx.vectors[id] = append(make([]float32, 0, len(vector)), vector...)
	return nil
}

// Remove deletes one vector.
func (idx *Index) Remove(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[id]; !exists {
		return fmt.Errorf("%w: id %d", core.ErrVectorNotFound, id)
	}
	delete(idx.vectors, id)
	return nil
}

// Contains reports whether an id is indexed.
func (idx *Index) Contains(id uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.vectors[id]
	return ok
}

// Search scans every stored vector, applies the optional filter, and
// returns the k nearest. Recall is exact by construction.
func (idx *Index) Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error) {
	result := &core.SearchResult{}
	if len(query) != idx.dimension || k <= 0 {
		return result, nil
	}
	var filter core.FilterFunc
	if params != nil {
		filter = params.Filter
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	items := make([]core.SearchResultItem, 0, len(idx.vectors))
	for id, vec := range idx.vectors {
		if filter != nil && !filter(id) {
			continue
		}
		items = append(items, core.SearchResultItem{
			ID:       id,
			Distance: distance.Calculate(query, vec, idx.metric),
		})
	}

	result.TotalCandidates = uint64(len(items))
	sort.Slice(items, func(i, j int) bool {
		if items[i].Distance != items[j].Distance {
			return items[i].Distance < items[j].Distance
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > k {
		items = items[:k]
	}
	result.Items = items
	return result, nil
}

// Build replaces the contents with the given records.
func (idx *Index) Build(records []core.VectorRecord) error {
	fresh := make(map[uint64][]float32, len(records))
	for _, rec := range records {
		if len(rec.Vector) != idx.dimension {
			return fmt.Errorf("%w: record %d has dimension %d, want %d",
				core.ErrDimensionMismatch, rec.ID, len(rec.Vector), idx.dimension)
		}
		if _, dup := fresh[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d in batch", core.ErrInvalidParameter, rec.ID)
		}
		fresh[rec.ID] = append(make([]float32, 0, len(rec.Vector)), rec.Vector...)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = fresh
	return nil
}

// Optimize is a no-op: a full scan has no structure to rebuild.
func (idx *Index) Optimize() error { return nil }

// Size returns the number of stored vectors.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Dimension returns the configured vector length.
func (idx *Index) Dimension() int { return idx.dimension }

// MemoryUsage estimates resident bytes: vector payloads plus map
// bookkeeping.
func (idx *Index) MemoryUsage() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	const perEntryOverhead = 48
	return int64(len(idx.vectors)) * int64(idx.dimension*4+perEntryOverhead)
}

// Vector returns a copy of the stored vector for an id.
func (idx *Index) Vector(id uint64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	vec, ok := idx.vectors[id]
	if !ok {
		return nil, false
	}
	return append(make([]float32, 0, len(vec)), vec...), true
}
