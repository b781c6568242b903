package ivf

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/lynxdb/lynx/internal/binio"
	"github.com/lynxdb/lynx/pkg/core"
)

const (
	magic         = "IVFX"
	formatVersion = uint32(1)
)

// Serialize writes the index snapshot:
//
//	"IVFX" | version:u32 | dimension:u64 | metric:u32 | k:u64 | total:u64 |
//	k x (dimension x f32 centroid) |
//	k x (list_size:u64, ids:u64 x size, vectors:(dimension x f32) x size) |
//	map_size:u64 | map_size x (id:u64, cluster:u64)
//
// Map pairs are written in ascending id order for deterministic output.
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
	if err := binio.WriteU64(bw, uint64(len(idx.centroids))); err != nil {
		return werr(err)
	}
	if err := binio.WriteU64(bw, uint64(len(idx.idToCluster))); err != nil {
		return werr(err)
	}

	for _, centroid := range idx.centroids {
		if err := binio.WriteF32Slice(bw, centroid); err != nil {
			return werr(err)
		}
	}

	for c := range idx.lists {
		list := &idx.lists[c]
		if err := binio.WriteU64(bw, uint64(len(list.ids))); err != nil {
			return werr(err)
		}
		if err := binio.WriteU64Slice(bw, list.ids); err != nil {
			return werr(err)
		}
		for _, vec := range list.vectors {
			if err := binio.WriteF32Slice(bw, vec); err != nil {
				return werr(err)
			}
		}
	}

	ids := make([]uint64, 0, len(idx.idToCluster))
	for id := range idx.idToCluster {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := binio.WriteU64(bw, uint64(len(ids))); err != nil {
		return werr(err)
	}
	for _, id := range ids {
		if err := binio.WriteU64(bw, id); err != nil {
			return werr(err)
		}
		if err := binio.WriteU64(bw, uint64(idx.idToCluster[id])); err != nil {
			return werr(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return werr(err)
	}
	return nil
}

// Deserialize replaces the index contents from a snapshot produced by
// Serialize. The stored centroid count wins over the configured target.
func (idx *Index) Deserialize(r io.Reader) error {
	br := bufio.NewReader(r)
	rerr := func(err error) error { return fmt.Errorf("%w: %v", core.ErrIOError, err) }

	ok, err := binio.ReadMagic(br, magic)
	if err != nil {
		return rerr(err)
	}
	if !ok {
		return fmt.Errorf("%w: bad ivf index magic", core.ErrIOError)
	}
	version, err := binio.ReadU32(br)
	if err != nil {
		return rerr(err)
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported ivf format version %d", core.ErrIOError, version)
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
	k, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	total, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}

	centroids := make([][]float32, k)
	for c := range centroids {
		centroids[c], err = binio.ReadF32Slice(br, idx.dimension)
		if err != nil {
			return rerr(err)
		}
	}

	lists := make([]invertedList, k)
	var loaded uint64
	for c := range lists {
		size, err := binio.ReadU64(br)
		if err != nil {
			return rerr(err)
		}
		lists[c].ids, err = binio.ReadU64Slice(br, int(size))
		if err != nil {
			return rerr(err)
		}
		lists[c].vectors = make([][]float32, size)
		for i := range lists[c].vectors {
			lists[c].vectors[i], err = binio.ReadF32Slice(br, idx.dimension)
			if err != nil {
				return rerr(err)
			}
		}
		loaded += size
	}
	if loaded != total {
		return fmt.Errorf("%w: lists hold %d vectors, header says %d", core.ErrIOError, loaded, total)
	}

	mapSize, err := binio.ReadU64(br)
	if err != nil {
		return rerr(err)
	}
	idToCluster := make(map[uint64]int, mapSize)
	for i := uint64(0); i < mapSize; i++ {
		id, err := binio.ReadU64(br)
		if err != nil {
			return rerr(err)
		}
		cluster, err := binio.ReadU64(br)
		if err != nil {
			return rerr(err)
		}
		if cluster >= k {
			return fmt.Errorf("%w: id %d maps to cluster %d of %d", core.ErrIOError, id, cluster, k)
		}
		idToCluster[id] = int(cluster)
	}

	idx.mu.Lock()
	idx.centroids = centroids
	idx.lists = lists
	idx.idToCluster = idToCluster
	idx.mu.Unlock()
	return nil
}
