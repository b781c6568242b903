package lynx

import (
	"fmt"

	"github.com/lynxdb/lynx/pkg/core"
)

// BatchInsert stores many records in one exclusive-lock critical section,
// choosing a strategy per call:
//
//  1. Empty database: bulk-build the index from the batch.
//  2. IVF index with a batch larger than half the current size: rebuild
//     from the union, since centroids retrained on the full population
//     cluster substantially better.
//  3. Otherwise: insert records one by one.
//
// The operation is all-or-nothing. Every record is validated before the
// first write; a validation failure leaves the database untouched.
func (db *DB) BatchInsert(records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Validate up front: dimensions, intra-batch uniqueness, collisions
	// with existing ids.
	seen := make(map[uint64]struct{}, len(records))
	for _, rec := range records {
		if len(rec.Vector) != db.cfg.Dimension {
			return fmt.Errorf("%w: record %d has dimension %d, database wants %d",
				core.ErrDimensionMismatch, rec.ID, len(rec.Vector), db.cfg.Dimension)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d in batch", core.ErrInvalidParameter, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		if _, exists := db.vectors[rec.ID]; exists {
			return fmt.Errorf("%w: id %d already present", core.ErrInvalidParameter, rec.ID)
		}
	}

	switch {
	case len(db.vectors) == 0:
		return db.batchBuildLocked(records)
	case db.idx.Type() == core.IndexIVF && len(records)*2 > len(db.vectors):
		return db.batchRebuildMergeLocked(records)
	default:
		return db.batchIncrementalLocked(records)
	}
}

// batchBuildLocked is the empty-database fast path: one index build, then
// populate the record map.
func (db *DB) batchBuildLocked(records []core.VectorRecord) error {
	if err := db.idx.Build(records); err != nil {
		return err
	}
	for _, rec := range records {
		db.vectors[rec.ID] = rec.Clone()
	}
	db.finishBatchLocked(records)
	return nil
}

// batchRebuildMergeLocked retrains the IVF index on existing plus new
// records in one pass.
func (db *DB) batchRebuildMergeLocked(records []core.VectorRecord) error {
	merged := make([]core.VectorRecord, 0, len(db.vectors)+len(records))
	for _, rec := range db.vectors {
		merged = append(merged, rec)
	}
	merged = append(merged, records...)

	if err := db.idx.Build(merged); err != nil {
		return err
	}
	for _, rec := range records {
		db.vectors[rec.ID] = rec.Clone()
	}
	db.finishBatchLocked(records)
	return nil
}

// batchIncrementalLocked inserts one record at a time. Validation already
// passed, so an index failure is unexpected; applied records are rolled
// back to keep the all-or-nothing contract.
func (db *DB) batchIncrementalLocked(records []core.VectorRecord) error {
	applied := make([]uint64, 0, len(records))
	for _, rec := range records {
		stored := rec.Clone()
		db.vectors[rec.ID] = stored
		if err := db.idx.Add(rec.ID, stored.Vector); err != nil {
			delete(db.vectors, rec.ID)
			for _, id := range applied {
				_ = db.idx.Remove(id)
				delete(db.vectors, id)
			}
			return err
		}
		applied = append(applied, rec.ID)
	}
	db.finishBatchLocked(records)
	return nil
}

// finishBatchLocked updates counters and mirrors the batch into the
// write log when maintenance is active.
func (db *DB) finishBatchLocked(records []core.VectorRecord) {
	db.totalInserts.Add(uint64(len(records)))
	if db.logEnabled.Load() {
		for _, rec := range records {
			db.wlog.appendInsert(rec.ID, rec.Vector)
		}
	}
	if db.logger != nil {
		db.logger.Debug("batch insert applied", map[string]interface{}{
			"count": len(records),
			"size":  len(db.vectors),
		})
	}
}
