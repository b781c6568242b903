// Package ivf implements the inverted-file index: the vector space is
// partitioned by k-means centroids, each owning an inverted list of its
// member vectors. Queries probe only the n_probe nearest lists, trading
// recall for latency.
package ivf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lynxdb/lynx/internal/kmeans"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

// Config holds the clustered index parameters.
type Config struct {
	Dimension int
	Metric    core.DistanceMetric
	// NClusters is the training target; the actual centroid count is
	// reduced when fewer vectors exist.
	NClusters int
	// NProbe is the default number of lists visited per query.
	NProbe int
	// Seed pins clustering for reproducible builds.
	Seed *int64
}

// invertedList stores a cluster's members as parallel id/vector arrays so
// removal is a swap-pop on both.
type invertedList struct {
	ids     []uint64
	vectors [][]float32
}

// Index is the clustered index. A reader-writer lock guards the
// centroids, the lists, and the id-to-cluster map together.
type Index struct {
	dimension int
	metric    core.DistanceMetric
	nClusters int
	nProbe    int
	seed      *int64

	mu          sync.RWMutex
	centroids   [][]float32
	lists       []invertedList
	idToCluster map[uint64]int
}

// New creates an empty IVF index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", core.ErrInvalidParameter)
	}
	if cfg.NClusters <= 0 {
		return nil, fmt.Errorf("%w: n_clusters must be positive", core.ErrInvalidParameter)
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 10
	}
	return &Index{
		dimension:   cfg.Dimension,
		metric:      cfg.Metric,
		nClusters:   cfg.NClusters,
		nProbe:      cfg.NProbe,
		seed:        cfg.Seed,
		idToCluster: make(map[uint64]int),
	}, nil
}

// Type identifies the algorithm.
func (idx *Index) Type() core.IndexType { return core.IndexIVF }

// Add inserts one vector incrementally. The first insertion into an
// untrained index installs a single centroid equal to that vector, which
// keeps the database's incremental path working before any bulk build.
func (idx *Index) Add(id uint64, vector []float32) error {
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vector), idx.dimension)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.idToCluster[id]; exists {
		return fmt.Errorf("%w: id %d already indexed", core.ErrInvalidState, id)
	}

	vec := append(make([]float32, 0, len(vector)), vector...)

	if len(idx.centroids) == 0 {
		idx.centroids = [][]float32{append(make([]float32, 0, len(vec)), vec...)}
		idx.lists = make([]invertedList, 1)
	}

	c := idx.nearestCentroidLocked(vec)
	idx.lists[c].ids = append(idx.lists[c].ids, id)
	idx.lists[c].vectors = append(idx.lists[c].vectors, vec)
	idx.idToCluster[id] = c
	return nil
}

// Remove swap-pops the entry out of its inverted list.
func (idx *Index) Remove(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	c, exists := idx.idToCluster[id]
	if !exists {
		return fmt.Errorf("%w: id %d", core.ErrVectorNotFound, id)
	}

	list := &idx.lists[c]
	for i, lid := range list.ids {
		if lid != id {
			continue
		}
		last := len(list.ids) - 1
		list.ids[i] = list.ids[last]
		list.vectors[i] = list.vectors[last]
		list.ids = list.ids[:last]
		list.vectors[last] = nil
		list.vectors = list.vectors[:last]
		break
	}
	delete(idx.idToCluster, id)
	return nil
}

// Contains reports whether an id is indexed.
func (idx *Index) Contains(id uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idToCluster[id]
	return ok
}

// Search probes the n_probe nearest clusters and ranks their members.
// Recall rises monotonically with n_probe; probing every cluster equals
// exact search.
func (idx *Index) Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error) {
	result := &core.SearchResult{}
	if len(query) != idx.dimension || k <= 0 {
		return result, nil
	}

	nProbe := idx.nProbe
	var filter core.FilterFunc
	if params != nil {
		if params.NProbe > 0 {
			nProbe = params.NProbe
		}
		filter = params.Filter
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.centroids) == 0 {
		return result, nil
	}
	if nProbe < 1 {
		nProbe = 1
	}
	if nProbe > len(idx.centroids) {
		nProbe = len(idx.centroids)
	}

	// Rank every centroid, keep the n_probe closest.
	type centroidDist struct {
		cluster int
		dist    float32
	}
	ranked := make([]centroidDist, len(idx.centroids))
	for c, centroid := range idx.centroids {
		ranked[c] = centroidDist{cluster: c, dist: distance.CalculateOrdering(query, centroid, idx.metric)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	items := make([]core.SearchResultItem, 0, nProbe*16)
	for _, cd := range ranked[:nProbe] {
		list := &idx.lists[cd.cluster]
		for i, id := range list.ids {
			if filter != nil && !filter(id) {
				continue
			}
			items = append(items, core.SearchResultItem{
				ID:       id,
				Distance: distance.Calculate(query, list.vectors[i], idx.metric),
			})
		}
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

// Build trains centroids on the batch and fills the inverted lists. An
// empty batch clears the index.
func (idx *Index) Build(records []core.VectorRecord) error {
	seen := make(map[uint64]struct{}, len(records))
	for _, rec := range records {
		if len(rec.Vector) != idx.dimension {
			return fmt.Errorf("%w: record %d has dimension %d, want %d",
				core.ErrDimensionMismatch, rec.ID, len(rec.Vector), idx.dimension)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d in batch", core.ErrInvalidParameter, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(records) == 0 {
		idx.centroids = nil
		idx.lists = nil
		idx.idToCluster = make(map[uint64]int)
		return nil
	}

	vectors := make([][]float32, len(records))
	for i, rec := range records {
		vectors[i] = append(make([]float32, 0, len(rec.Vector)), rec.Vector...)
	}

	cfg := kmeans.DefaultConfig(idx.metric)
	cfg.Seed = idx.seed
	centroids, err := kmeans.Train(vectors, idx.nClusters, cfg)
	if err != nil {
		return err
	}

	lists := make([]invertedList, len(centroids))
	idToCluster := make(map[uint64]int, len(records))
	for i, rec := range records {
		c := nearestCentroid(vectors[i], centroids, idx.metric)
		lists[c].ids = append(lists[c].ids, rec.ID)
		lists[c].vectors = append(lists[c].vectors, vectors[i])
		idToCluster[rec.ID] = c
	}

	idx.centroids = centroids
	idx.lists = lists
	idx.idToCluster = idToCluster
	return nil
}

// Optimize retrains the clustering on the current contents. Centroids
// drift as vectors come and go; retraining restores list balance.
func (idx *Index) Optimize() error {
	idx.mu.RLock()
	records := make([]core.VectorRecord, 0, len(idx.idToCluster))
	for c := range idx.lists {
		list := &idx.lists[c]
		for i, id := range list.ids {
			records = append(records, core.VectorRecord{ID: id, Vector: list.vectors[i]})
		}
	}
	idx.mu.RUnlock()

	if len(records) == 0 {
		return nil
	}
	return idx.Build(records)
}

// Size returns the number of indexed vectors.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToCluster)
}

// Dimension returns the configured vector length.
func (idx *Index) Dimension() int { return idx.dimension }

// MemoryUsage estimates resident bytes of centroids, lists, and the
// cluster map.
func (idx *Index) MemoryUsage() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	total += int64(len(idx.centroids)) * int64(idx.dimension) * 4
	for c := range idx.lists {
		total += int64(len(idx.lists[c].ids)) * 8
		total += int64(len(idx.lists[c].vectors)) * int64(idx.dimension) * 4
	}
	const mapEntryOverhead = 24
	total += int64(len(idx.idToCluster)) * mapEntryOverhead
	return total
}

// nearestCentroidLocked assumes the lock is held.
func (idx *Index) nearestCentroidLocked(v []float32) int {
	return nearestCentroid(v, idx.centroids, idx.metric)
}

func nearestCentroid(v []float32, centroids [][]float32, metric core.DistanceMetric) int {
	best := 0
	bestDist := distance.CalculateOrdering(v, centroids[0], metric)
	for c := 1; c < len(centroids); c++ {
		if d := distance.CalculateOrdering(v, centroids[c], metric); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// Vector returns a copy of the stored vector for an id.
func (idx *Index) Vector(id uint64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.idToCluster[id]
	if !ok {
		return nil, false
	}
	list := &idx.lists[c]
	for i, lid := range list.ids {
		if lid == id {
			vec := list.vectors[i]
			return append(make([]float32, 0, len(vec)), vec...), true
		}
	}
	return nil, false
}
