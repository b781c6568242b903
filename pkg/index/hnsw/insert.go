package hnsw

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

// Add inserts one vector under the caller-chosen id. Inserting an id that
// is already present fails with InvalidState.
func (idx *Index) Add(id uint64, vector []float32) error {
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vector), idx.dimension)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[id]; exists {
		return fmt.Errorf("%w: id %d already in graph", core.ErrInvalidState, id)
	}

	vec := append(make([]float32, 0, len(vector)), vector...)
	idx.insertLocked(id, vec)
	return nil
}

// insertLocked runs the insertion algorithm. The write lock is held.
func (idx *Index) insertLocked(id uint64, vector []float32) {
	level := idx.randomLevel()
	n := newNode(id, vector, level)

	if !idx.hasEntry {
		idx.nodes[id] = n
		idx.entryPoint = id
		idx.entryPointLayer = level
		idx.hasEntry = true
		return
	}

	// Phase 1: greedy 1-nearest descent from the top layer down to the
	// layer just above the new node's level.
	ep := idx.entryPoint
	epDist := distance.Calculate(vector, idx.nodes[ep].vector, idx.metric)
	for lc := idx.entryPointLayer; lc > level; lc-- {
		ep, epDist = idx.greedyStep(vector, ep, epDist, lc)
	}

	// Phase 2: per layer from min(level, entryPointLayer) down to 0,
	// run the beam search, pick neighbors heuristically, and connect.
	entries := []heapItem{{id: ep, distance: epDist}}
	top := level
	if idx.entryPointLayer < top {
		top = idx.entryPointLayer
	}
	for lc := top; lc >= 0; lc-- {
		candidates := idx.searchLayer(vector, entries, idx.efConstruction, lc, nil)

		selected := idx.selectNeighbors(vector, candidates, idx.layerCap(lc))
		for _, s := range selected {
			n.neighbors[lc] = append(n.neighbors[lc], s.id)
			peer := idx.nodes[s.id]
			if lc > peer.maxLayer {
				continue
			}
			peer.neighbors[lc] = append(peer.neighbors[lc], id)
			if len(peer.neighbors[lc]) > idx.layerCap(lc) {
				idx.shrinkNeighbors(peer, lc)
			}
		}

		// The best candidates seed the next layer down.
		if len(candidates) > 0 {
			entries = candidates
		}
	}

	idx.nodes[id] = n
	if level > idx.entryPointLayer {
		idx.entryPoint = id
		idx.entryPointLayer = level
	}
}

// greedyStep walks to the nearest neighbor at one layer until no neighbor
// improves on the current position.
func (idx *Index) greedyStep(query []float32, ep uint64, epDist float32, layer int) (uint64, float32) {
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
			if d := distance.Calculate(query, peer.vector, idx.metric); d < epDist {
				ep, epDist = nb, d
				improved = true
			}
		}
		if !improved {
			return ep, epDist
		}
	}
}

// searchLayer is the beam search at one layer: a min-heap frontier of
// candidates to visit and a bounded max-heap of the best ef results.
// scored, when non-nil, accumulates the number of distance evaluations.
// The returned slice is sorted by ascending distance.
func (idx *Index) searchLayer(query []float32, entries []heapItem, ef int, layer int, scored *uint64) []heapItem {
	visited := make(map[uint64]struct{}, ef*4)
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, e := range entries {
		if _, seen := visited[e.id]; seen {
			continue
		}
		visited[e.id] = struct{}{}
		heap.Push(candidates, e)
		heap.Push(results, e)
	}
	for results.Len() > ef {
		heap.Pop(results)
	}

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(heapItem)
		if results.Len() >= ef && current.distance > results.peek().distance {
			break
		}

		cur, ok := idx.nodes[current.id]
		if !ok || layer > cur.maxLayer {
			continue
		}
		for _, nb := range cur.neighbors[layer] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			peer, ok := idx.nodes[nb]
			if !ok {
				continue
			}
			d := distance.Calculate(query, peer.vector, idx.metric)
			if scored != nil {
				*scored++
			}
			if results.Len() < ef || d < results.peek().distance {
				item := heapItem{id: nb, distance: d}
				heap.Push(candidates, item)
				heap.Push(results, item)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]heapItem, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(heapItem)
	}
	return out
}

// selectNeighbors applies the heuristic from the HNSW paper: walking the
// pool in ascending distance to the target, admit a candidate only if it
// is closer to the target than to every neighbor already selected. This
// prunes redundant edges inside dense clusters and keeps the graph
// navigable.
func (idx *Index) selectNeighbors(target []float32, pool []heapItem, capacity int) []heapItem {
	selected := make([]heapItem, 0, capacity)
	for _, c := range pool {
		if len(selected) >= capacity {
			break
		}
		cand := idx.nodes[c.id]
		if cand == nil {
			continue
		}
		admit := true
		for _, s := range selected {
			if distance.Calculate(cand.vector, idx.nodes[s.id].vector, idx.metric) < c.distance {
				admit = false
				break
			}
		}
		if admit {
			selected = append(selected, c)
		}
	}
	return selected
}

// shrinkNeighbors re-runs the heuristic over a node's own neighbor set
// after its degree exceeded the layer cap.
func (idx *Index) shrinkNeighbors(n *node, layer int) {
	pool := make([]heapItem, 0, len(n.neighbors[layer]))
	for _, nb := range n.neighbors[layer] {
		peer, ok := idx.nodes[nb]
		if !ok {
			continue
		}
		pool = append(pool, heapItem{
			id:       nb,
			distance: distance.Calculate(n.vector, peer.vector, idx.metric),
		})
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].distance < pool[j].distance })

	selected := idx.selectNeighbors(n.vector, pool, idx.layerCap(layer))
	kept := make([]uint64, len(selected))
	for i, s := range selected {
		kept[i] = s.id
	}
	n.neighbors[layer] = kept
}
