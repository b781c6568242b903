package lynx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/index"
)

// OptimizeIndex rebuilds the index without blocking queries or writes:
//
//  1. Write logging is switched on.
//  2. The active index is cloned (serialize into memory, deserialize
//     into a detached copy) under the shared lock.
//  3. The clone is optimized while the live index keeps serving.
//  4. Writes that arrived meanwhile are replayed onto the clone from the
//     log, in order.
//  5. Under the exclusive lock the remaining log tail is replayed, the
//     clone is swapped in, and the log is cleared.
//
// If the log exceeds its soft threshold, or overflows the hard cap, the
// optimization is abandoned with Busy and the live index stays in place.
// Only one OptimizeIndex runs at a time; concurrent calls return Busy.
func (db *DB) OptimizeIndex() error {
	if !db.maintenanceMu.TryLock() {
		return fmt.Errorf("%w: optimization already running", core.ErrBusy)
	}
	defer db.maintenanceMu.Unlock()

	db.wlog.clear()
	db.logEnabled.Store(true)
	abort := func() {
		db.logEnabled.Store(false)
		db.wlog.clear()
	}

	clone, err := db.cloneIndex()
	if err != nil {
		abort()
		return err
	}

	if db.logger != nil {
		db.logger.Info("index optimization started", map[string]interface{}{
			"size": clone.Size(),
		})
	}

	if err := clone.Optimize(); err != nil {
		abort()
		return err
	}

	if db.wlog.hasOverflowed() || db.wlog.size() > writeLogWarnThreshold {
		abort()
		if db.logger != nil {
			db.logger.Warn("index optimization aborted under write pressure", map[string]interface{}{
				"log_size": db.wlog.size(),
			})
		}
		return fmt.Errorf("%w: write log exceeded threshold during optimization", core.ErrBusy)
	}

	// Bulk replay outside the lock; writers keep appending behind us.
	replayed := 0
	for {
		entries := db.wlog.drainFrom(replayed)
		if len(entries) == 0 {
			break
		}
		if err := replayEntries(clone, entries); err != nil {
			abort()
			return err
		}
		replayed += len(entries)
		if replayed > writeLogWarnThreshold {
			abort()
			return fmt.Errorf("%w: write log exceeded threshold during replay", core.ErrBusy)
		}
	}

	// Final handoff: replay the tail that raced with the bulk pass, stop
	// logging, and swap. Readers see the old index or the new one, never
	// a torn state.
	db.mu.Lock()
	tail := db.wlog.drainFrom(replayed)
	if err := replayEntries(clone, tail); err != nil {
		db.mu.Unlock()
		abort()
		return err
	}
	db.logEnabled.Store(false)
	db.idx = clone
	db.mu.Unlock()
	db.wlog.clear()

	if db.logger != nil {
		db.logger.Info("index optimization finished", map[string]interface{}{
			"replayed": replayed + len(tail),
		})
	}
	return nil
}

// cloneIndex snapshots the active index into a detached copy via its own
// serialization format.
func (db *DB) cloneIndex() (index.Index, error) {
	clone, err := index.New(db.cfg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	db.mu.RLock()
	err = db.idx.Serialize(&buf)
	db.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if err := clone.Deserialize(&buf); err != nil {
		return nil, err
	}
	return clone, nil
}

// replayEntries applies logged writes to the clone in order. An insert
// that collides with an id already on the clone falls back to
// remove-then-add; removals of missing ids are ignored.
func replayEntries(clone index.Index, entries []logEntry) error {
	for _, e := range entries {
		switch e.op {
		case opInsert:
			err := clone.Add(e.id, e.vector)
			if errors.Is(err, core.ErrInvalidState) {
				if rmErr := clone.Remove(e.id); rmErr != nil && !errors.Is(rmErr, core.ErrVectorNotFound) {
					return rmErr
				}
				err = clone.Add(e.id, e.vector)
			}
			if err != nil {
				return err
			}
		case opRemove:
			if err := clone.Remove(e.id); err != nil && !errors.Is(err, core.ErrVectorNotFound) {
				return err
			}
		}
	}
	return nil
}
