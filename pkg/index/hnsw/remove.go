package hnsw

import (
	"fmt"

	"github.com/lynxdb/lynx/pkg/core"
)

// Remove deletes a node and every edge pointing at it. If the node was
// the entry point, the surviving node with the highest layer becomes the
// new entry (ties broken by lowest id). The result is correct but not
// graph-optimal; Optimize repairs locality when it matters.
func (idx *Index) Remove(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[id]; !exists {
		return fmt.Errorf("%w: id %d", core.ErrVectorNotFound, id)
	}

	delete(idx.nodes, id)

	// Heuristic shrinking can leave edges asymmetric, so the victim's own
	// neighbor lists are not a complete inventory of inbound references.
	// Scan every remaining node and drop the dangling id.
	for _, n := range idx.nodes {
		for layer := 0; layer <= n.maxLayer; layer++ {
			nbs := n.neighbors[layer]
			for i := 0; i < len(nbs); i++ {
				if nbs[i] == id {
					nbs[i] = nbs[len(nbs)-1]
					nbs = nbs[:len(nbs)-1]
					i--
				}
			}
			n.neighbors[layer] = nbs
		}
	}

	if idx.entryPoint == id {
		idx.reselectEntryLocked()
	}
	return nil
}

// reselectEntryLocked picks the new entry point: the highest-layer
// surviving node, lowest id on ties. An empty graph clears the entry.
func (idx *Index) reselectEntryLocked() {
	idx.hasEntry = false
	bestLayer := -1
	var bestID uint64
	for id, n := range idx.nodes {
		if n.maxLayer > bestLayer || (n.maxLayer == bestLayer && id < bestID) {
			bestLayer = n.maxLayer
			bestID = id
		}
	}
	if bestLayer >= 0 {
		idx.entryPoint = bestID
		idx.entryPointLayer = bestLayer
		idx.hasEntry = true
	} else {
		idx.entryPoint = 0
		idx.entryPointLayer = 0
	}
}
