package hnsw

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/lynxdb/lynx/internal/binio"
	"github.com/lynxdb/lynx/pkg/core"
)

const (
	magic         = "HNSW"
	formatVersion = uint32(1)
)

// Serialize writes the graph snapshot:
//
//	"HNSW" | version:u32 | dimension:u64 | metric:u32 | M:u64 |
//	entry_point:u64 | entry_point_layer:u64 | node_count:u64 |
//	node_count x (id:u64, max_layer:u64, dimension x f32,
//	              (max_layer+1) x (neighbor_count:u64, neighbor ids))
//
// Nodes are written in ascending id order for deterministic output.
func (idx *Index) Serialize(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := bufio.NewWriter(w)
	werr := func(err error) error { return fmt.Errorf("%w: %v", core.ErrIOError, err) }

	if err := binio.WriteMagic(bw, magic); err != nil {
		return werr(err)
	}
	if err := binio.WriteU32(bw, formatVersion); err != nil {
		return werr(err)
	}
	if err := binio.WriteU64(bw, uint64(idx.dimension)); err != nil {
		return werr(err)
	}
	if err := binio.WriteU32(bw, uint32(idx.metric)); err != nil {
		return werr(err)
	}
	if err := binio.WriteU64(bw, uint64(idx.m)); err != nil {
		return werr(err)
	}
	entry, entryLayer := uint64(0), uint64(0)
	if idx.hasEntry {
		entry = idx.entryPoint
		entryLayer = uint64(idx.entryPointLayer)
	}
	if err := binio.WriteU64(bw, entry); err != nil {
		return werr(err)
	}
	if err := binio.WriteU64(bw, entryLayer); err != nil {
		return werr(err)
	}
	if err := binio.WriteU64(bw, uint64(len(idx.nodes))); err != nil {
		return werr(err)
	}

	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := idx.nodes[id]
		if err := binio.WriteU64(bw, n.id); err != nil {
			return werr(err)
		}
		if err := binio.WriteU64(bw, uint64(n.maxLayer)); err != nil {
			return werr(err)
		}
		if err := binio.WriteF32Slice(bw, n.vector); err != nil {
			return werr(err)
		}
		for layer := 0; layer <= n.maxLayer; layer++ {
			if err := binio.WriteU64(bw, uint64(len(n.neighbors[layer]))); err != nil {
				return werr(err)
			}
			if err := binio.WriteU64Slice(bw, n.neighbors[layer]); err != nil {
				return werr(err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return werr(err)
	}
	return nil
}

// Deserialize replaces the graph from a snapshot produced by Serialize.
func (idx *Index) Deserialize(r io.Reader) error {
	br := bufio.NewReader(r)
	rerr := func(err error) error { return fmt.Errorf("%w: %v", core.ErrIOError, err) }

	ok, err := binio.ReadMagic(br, magic)
	if err != nil {
		return rerr(err)
	}
	if !ok {
		return fmt.Errorf("%w: bad hnsw index magic", core.ErrIOError)
	}
	version, err := binio.ReadU32(br)
	if err != nil {
		return rerr(err)
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported hnsw format version %d", core.ErrIOError, version)
	}
	dim, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	if int(dim) != idx.dimension {
		return fmt.Errorf("%w: file dimension %d, index dimension %d",
			core.ErrDimensionMismatch, dim, idx.dimension)
	}
	metric, err := binio.ReadU32(br)
	if err != nil {
		return rerr(err)
	}
	if core.DistanceMetric(metric) != idx.metric {
		return fmt.Errorf("%w: file metric %s, index metric %s",
			core.ErrInvalidParameter, core.DistanceMetric(metric), idx.metric)
	}
	m, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	if int(m) != idx.m {
		return fmt.Errorf("%w: file M %d, index M %d", core.ErrInvalidParameter, m, idx.m)
	}
	entry, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	entryLayer, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	count, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}

	nodes := make(map[uint64]*node, count)
	for i := uint64(0); i < count; i++ {
		id, err := binio.ReadU64(br)
		if err != nil {
			return rerr(err)
		}
		maxLayer, err := binio.ReadU64(br)
		if err != nil {
			return rerr(err)
		}
		if maxLayer > maxLevelCap {
			return fmt.Errorf("%w: node %d layer %d exceeds cap", core.ErrIOError, id, maxLayer)
		}
		vec, err := binio.ReadF32Slice(br, idx.dimension)
		if err != nil {
			return rerr(err)
		}
		n := &node{id: id, vector: vec, maxLayer: int(maxLayer)}
		n.neighbors = make([][]uint64, maxLayer+1)
		for layer := uint64(0); layer <= maxLayer; layer++ {
			nbCount, err := binio.ReadU64(br)
			if err != nil {
				return rerr(err)
			}
			nbs, err := binio.ReadU64Slice(br, int(nbCount))
			if err != nil {
				return rerr(err)
			}
			n.neighbors[layer] = nbs
		}
		nodes[id] = n
	}

	if count > 0 {
		if _, ok := nodes[entry]; !ok {
			return fmt.Errorf("%w: entry point %d missing from node set", core.ErrIOError, entry)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nodes = nodes
	if count > 0 {
		idx.entryPoint = entry
		idx.entryPointLayer = int(entryLayer)
		idx.hasEntry = true
	} else {
		idx.hasEntry = false
		idx.entryPoint = 0
		idx.entryPointLayer = 0
	}
	return nil
}
