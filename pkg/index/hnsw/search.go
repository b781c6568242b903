package hnsw

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

// Search returns the k nearest neighbors of the query. An empty graph or
// a mismatched query dimension yields an empty result.
//
// The filter in params is applied after graph traversal: filtered-out
// candidates are dropped without refilling the beam, so a highly
// selective filter can return fewer than k items.
func (idx *Index) Search(query []float32, k int, params *core.SearchParams) (*core.SearchResult, error) {
	result := &core.SearchResult{}
	if len(query) != idx.dimension || k <= 0 {
		return result, nil
	}

	ef := idx.efSearch
	var filter core.FilterFunc
	if params != nil {
		if params.EfSearch > 0 {
			ef = params.EfSearch
		}
		filter = params.Filter
	}
	if ef < k {
		ef = k
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return result, nil
	}

	var scored uint64

	// Greedy descent with ef=1 through the upper layers.
	ep := idx.entryPoint
	epDist := distance.Calculate(query, idx.nodes[ep].vector, idx.metric)
	scored++
	for lc := idx.entryPointLayer; lc > 0; lc-- {
		ep, epDist = idx.greedyStepCounted(query, ep, epDist, lc, &scored)
	}

	// Beam search at the base layer.
	items := idx.searchLayer(query, []heapItem{{id: ep, distance: epDist}}, ef, 0, &scored)

	out := make([]core.SearchResultItem, 0, k)
	for _, item := range items {
		if filter != nil && !filter(item.id) {
			continue
		}
		out = append(out, core.SearchResultItem{ID: item.id, Distance: item.distance})
		if len(out) == k {
			break
		}
	}

	result.Items = out
	result.TotalCandidates = scored
	return result, nil
}

// greedyStepCounted is greedyStep with distance evaluations counted.
func (idx *Index) greedyStepCounted(query []float32, ep uint64, epDist float32, layer int, scored *uint64) (uint64, float32) {
	for {
		improved := false
		cur := idx.nodes[ep]
		if layer > cur.maxLayer {
			return ep, epDist
		}
		for _, nb := range cur.neighbors[layer] {
			peer, ok := idx.nodes[nb]
			if !ok {
				continue
			}
			d := distance.Calculate(query, peer.vector, idx.metric)
			*scored++
			if d < epDist {
				ep, epDist = nb, d
				improved = true
			}
		}
		if !improved {
			return ep, epDist
		}
	}
}

// Build replaces the graph with the given records, inserting them under
// fresh level assignments. Duplicate ids within the batch are rejected;
// an empty batch clears the graph.
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

	idx.resetLocked()
	for _, rec := range records {
		vec := append(make([]float32, 0, len(rec.Vector)), rec.Vector...)
		idx.insertLocked(rec.ID, vec)
	}
	return nil
}

// Optimize reconstructs the graph from scratch: current vectors are
// re-inserted in ascending id order under fresh level assignments. This
// repairs the locality lost to removals and is the long-running operation
// the database's write-log maintenance protocol wraps.
func (idx *Index) Optimize() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	old := idx.nodes
	idx.resetLocked()
	for _, id := range ids {
		idx.insertLocked(id, old[id].vector)
	}
	return nil
}

// resetLocked clears the graph state and reseeds the level RNG. The
// write lock is held.
func (idx *Index) resetLocked() {
	idx.nodes = make(map[uint64]*node)
	idx.hasEntry = false
	idx.entryPoint = 0
	idx.entryPointLayer = 0
	if idx.seed != nil {
		idx.rng = rand.New(rand.NewSource(*idx.seed))
	} else {
		idx.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}
