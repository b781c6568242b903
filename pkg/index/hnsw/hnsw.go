// Package hnsw implements the Hierarchical Navigable Small World graph
// index: a multi-layer proximity graph with logarithmic search, heuristic
// neighbor pruning, and support for removal and full rebuilds.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lynxdb/lynx/pkg/core"
)

// maxLevelCap bounds the level drawn for any node regardless of the
// geometric distribution's tail.
const maxLevelCap = 16

// Config holds the construction-time parameters. They are frozen once the
// index exists.
type Config struct {
	Dimension      int
	Metric         core.DistanceMetric
	M              int
	EfConstruction int
	EfSearch       int
	// MaxElements is informational; the graph itself is unbounded.
	MaxElements int
	// RandomSeed pins level assignment for reproducible graphs.
	RandomSeed *int64
}

// Index is the graph index. A single reader-writer lock guards the node
// map and entry point; it is uncontended when the index runs under the
// database's exclusive lock but makes the index safe standalone.
type Index struct {
	dimension      int
	metric         core.DistanceMetric
	m              int
	mMax           int
	mMax0          int
	efConstruction int
	efSearch       int
	maxElements    int
	mL             float64
	seed           *int64

	mu    sync.RWMutex
	rng   *rand.Rand
	nodes map[uint64]*node

	entryPoint      uint64
	entryPointLayer int
	hasEntry        bool
}

// node is one graph vertex: the vector plus a neighbor list per layer
// from 0 up to maxLayer.
type node struct {
	id        uint64
	vector    []float32
	maxLayer  int
	neighbors [][]uint64
}

func newNode(id uint64, vector []float32, maxLayer int) *node {
	neighbors := make([][]uint64, maxLayer+1)
	for i := range neighbors {
		neighbors[i] = make([]uint64, 0, 8)
	}
	return &node{id: id, vector: vector, maxLayer: maxLayer, neighbors: neighbors}
}

// New creates an empty graph with the given parameters.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", core.ErrInvalidParameter)
	}
	if cfg.M <= 1 {
		return nil, fmt.Errorf("%w: m must be greater than 1", core.ErrInvalidParameter)
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}

	var src rand.Source
	if cfg.RandomSeed != nil {
		src = rand.NewSource(*cfg.RandomSeed)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}

	return &Index{
		dimension:      cfg.Dimension,
		metric:         cfg.Metric,
		m:              cfg.M,
		mMax:           cfg.M,
		mMax0:          cfg.M * 2,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		maxElements:    cfg.MaxElements,
		mL:             1.0 / math.Log(float64(cfg.M)),
		seed:           cfg.RandomSeed,
		rng:            rand.New(src),
		nodes:          make(map[uint64]*node),
	}, nil
}

// Type identifies the algorithm.
func (idx *Index) Type() core.IndexType { return core.IndexHNSW }

// Contains reports whether an id is in the graph.
func (idx *Index) Contains(id uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.nodes[id]
	return ok
}

// Size returns the number of nodes.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Dimension returns the configured vector length.
func (idx *Index) Dimension() int { return idx.dimension }

// MemoryUsage estimates resident bytes: vectors plus neighbor lists. The
// base layer dominates.
func (idx *Index) MemoryUsage() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, n := range idx.nodes {
		total += int64(len(n.vector)) * 4
		for _, nb := range n.neighbors {
			total += int64(len(nb)) * 8
		}
		const nodeOverhead = 64
		total += nodeOverhead
	}
	return total
}

// randomLevel draws floor(-ln(u) * mL) with u uniform in (0, 1], capped.
// Callers hold the write lock (the RNG is not synchronized).
func (idx *Index) randomLevel() int {
	u := 1.0 - idx.rng.Float64() // (0, 1]
	level := int(math.Floor(-math.Log(u) * idx.mL))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

// layerCap returns the degree bound for a layer.
func (idx *Index) layerCap(layer int) int {
	if layer == 0 {
		return idx.mMax0
	}
	return idx.mMax
}

// Vector returns a copy of the stored vector for an id.
func (idx *Index) Vector(id uint64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[id]
	if !ok {
		return nil, false
	}
	return append(make([]float32, 0, len(n.vector)), n.vector...), true
}
