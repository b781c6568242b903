package lynx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lynxdb/lynx/internal/binio"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/index"
)

const (
	indexFileName   = "index.bin"
	vectorsFileName = "vectors.bin"

	vectorsMagic         = "LYNX"
	vectorsFormatVersion = uint32(1)
)

// Save writes the database to its data path: index.bin carries the full
// index snapshot (including every vector), vectors.bin carries only ids
// and metadata. Runs under the shared lock; concurrent reads proceed.
func (db *DB) Save() error {
	if db.cfg.DataPath == "" {
		return fmt.Errorf("%w: save requires a data path", core.ErrInvalidParameter)
	}
	if err := os.MkdirAll(db.cfg.DataPath, 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %v", core.ErrIOError, err)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := db.saveIndexLocked(); err != nil {
		return err
	}
	if err := db.saveVectorsLocked(); err != nil {
		return err
	}
	if db.logger != nil {
		db.logger.Info("database saved", map[string]interface{}{
			"path":  db.cfg.DataPath,
			"count": len(db.vectors),
		})
	}
	return nil
}

func (db *DB) saveIndexLocked() error {
	path := filepath.Join(db.cfg.DataPath, indexFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrIOError, path, err)
	}
	defer f.Close()

	if err := db.idx.Serialize(f); err != nil {
		return err
	}
	return nil
}

// saveVectorsLocked writes the record metadata file:
//
//	"LYNX" | version:u32 | count:u64 |
//	count x (id:u64, metadata_len:u32, metadata bytes)
//
// The vector payload itself lives in the index file.
func (db *DB) saveVectorsLocked() error {
	path := filepath.Join(db.cfg.DataPath, vectorsFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrIOError, path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := binio.WriteMagic(bw, vectorsMagic); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU32(bw, vectorsFormatVersion); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if err := binio.WriteU64(bw, uint64(len(db.vectors))); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}

	ids := make([]uint64, 0, len(db.vectors))
	for id := range db.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := binio.WriteU64(bw, id); err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
		if err := binio.WriteBytes(bw, db.vectors[id].Metadata); err != nil {
			return fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	return nil
}

// Load replaces the entire database state from the data path. Runs under
// the exclusive lock; the swap is atomic from a reader's point of view.
func (db *DB) Load() error {
	if db.cfg.DataPath == "" {
		return fmt.Errorf("%w: load requires a data path", core.ErrInvalidParameter)
	}

	// Deserialize the index into a detached instance first, so a corrupt
	// file cannot leave the database half-loaded.
	fresh, err := index.New(db.cfg)
	if err != nil {
		return err
	}
	indexPath := filepath.Join(db.cfg.DataPath, indexFileName)
	f, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", core.ErrIOError, indexPath, err)
	}
	if err := fresh.Deserialize(f); err != nil {
		f.Close()
		return err
	}
	f.Close()

	ids, metadata, err := db.loadVectorsFile()
	if err != nil {
		return err
	}

	// Reassemble records: metadata from vectors.bin, vector bodies from
	// the index.
	vectors := make(map[uint64]core.VectorRecord, len(ids))
	for i, id := range ids {
		vec, ok := fresh.Vector(id)
		if !ok {
			return fmt.Errorf("%w: id %d in vectors.bin missing from index", core.ErrIOError, id)
		}
		vectors[id] = core.VectorRecord{ID: id, Vector: vec, Metadata: metadata[i]}
	}
	if fresh.Size() != len(vectors) {
		return fmt.Errorf("%w: index holds %d vectors, vectors.bin lists %d",
			core.ErrIOError, fresh.Size(), len(vectors))
	}

	db.mu.Lock()
	db.idx = fresh
	db.vectors = vectors
	db.mu.Unlock()

	if db.logger != nil {
		db.logger.Info("database loaded", map[string]interface{}{
			"path":  db.cfg.DataPath,
			"count": len(vectors),
		})
	}
	return nil
}

func (db *DB) loadVectorsFile() ([]uint64, [][]byte, error) {
	path := filepath.Join(db.cfg.DataPath, vectorsFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", core.ErrIOError, path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	ok, err := binio.ReadMagic(br, vectorsMagic)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: bad vectors file magic", core.ErrIOError)
	}
	version, err := binio.ReadU32(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrIOError, err)
	}
	if version != vectorsFormatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported vectors format version %d", core.ErrIOError, version)
	}
	count, err := binio.ReadU64(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrIOError, err)
	}

	ids := make([]uint64, count)
	metadata := make([][]byte, count)
	for i := uint64(0); i < count; i++ {
		ids[i], err = binio.ReadU64(br)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
		metadata[i], err = binio.ReadBytes(br)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", core.ErrIOError, err)
		}
	}
	return ids, metadata, nil
}

// Flush makes the current state durable. With enable_wal set it reports
// NotImplemented (the WAL is reserved); without a data path it is a
// successful no-op; otherwise it saves.
func (db *DB) Flush() error {
	if db.cfg.EnableWAL {
		return fmt.Errorf("%w: wal flush", core.ErrNotImplemented)
	}
	if db.cfg.DataPath == "" {
		return nil
	}
	return db.Save()
}
