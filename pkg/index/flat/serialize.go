package flat

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/lynxdb/lynx/internal/binio"
	"github.com/lynxdb/lynx/pkg/core"
)

const (
	magic         = "FLAT"
	formatVersion = uint32(1)
)

// Serialize writes the index snapshot:
//
//	"FLAT" | version:u32 | dimension:u64 | metric:u32 | count:u64 |
//	count x (id:u64, dimension x f32)
//
// Records are written in ascending id order so identical contents always
// produce identical bytes.
func (idx *Index) Serialize(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if err := binio.WriteMagic(bw, magic); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU32(bw, formatVersion); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU64(bw, uint64(idx.dimension)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU32(bw, uint32(idx.metric)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU64(bw, uint64(len(idx.vectors))); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}

	ids := make([]uint64, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := binio.WriteU64(bw, id); err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
		if err := binio.WriteF32Slice(bw, idx.vectors[id]); err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	return nil
}

// Deserialize replaces the index contents from a snapshot produced by
// Serialize. The stored dimension and metric must match the index
// configuration.
func (idx *Index) Deserialize(r io.Reader) error {
	br := bufio.NewReader(r)

	ok, err := binio.ReadMagic(br, magic)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if !ok {
		return fmt.Errorf("%w: bad flat index magic", core.ErrIOError)
	}
	version, err := binio.ReadU32(br)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported flat format version %d", core.ErrIOError, version)
	}
	dim, err := binio.ReadU64(br)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if int(dim) != idx.dimension {
		return fmt.Errorf("%w: file dimension %d, index dimension %d",
			core.ErrDimensionMismatch, dim, idx.dimension)
	}
	metric, err := binio.ReadU32(br)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if core.DistanceMetric(metric) != idx.metric {
		return fmt.Errorf("%w: file metric %s, index metric %s",
			core.ErrInvalidParameter, core.DistanceMetric(metric), idx.metric)
	}
	count, err := binio.ReadU64(br)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}

	vectors := make(map[uint64][]float32, count)
	for i := uint64(0); i < count; i++ {
		id, err := binio.ReadU64(br)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
		vec, err := binio.ReadF32Slice(br, idx.dimension)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
		vectors[id] = vec
	}

	idx.mu.Lock()
	idx.vectors = vectors
	idx.mu.Unlock()
	return nil
}
