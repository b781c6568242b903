package lynx

import (
	"sync"
	"time"
)

// Write-log bounds. The hard cap stops the log from growing without
// limit under write-heavy load; the soft cap aborts an optimization whose
// replay backlog got too large to be worth finishing.
const (
	writeLogMaxEntries    = 100_000
	writeLogWarnThreshold = 50_000
)

// logOp tags a write-log entry.
type logOp uint8

const (
	opInsert logOp = iota
	opRemove
)

// logEntry is one recorded write. Order is semantically significant:
// Insert(5,A); Remove(5); Insert(5,B) must replay in that exact order.
type logEntry struct {
	op        logOp
	id        uint64
	vector    []float32
	timestamp time.Time
}

// writeLog is the ordered, bounded buffer of writes captured while index
// maintenance runs. Appends happen under the database's exclusive lock
// but the maintenance goroutine reads concurrently, so the log carries
// its own mutex.
type writeLog struct {
	mu         sync.Mutex
	entries    []logEntry
	overflowed bool
}

// appendInsert records an insert. Returns false once the hard cap is hit;
// the overflow is sticky and aborts the running maintenance.
func (wl *writeLog) appendInsert(id uint64, vector []float32) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	if len(wl.entries) >= writeLogMaxEntries {
		wl.overflowed = true
		return false
	}
	vec := append(make([]float32, 0, len(vector)), vector...)
	wl.entries = append(wl.entries, logEntry{op: opInsert, id: id, vector: vec, timestamp: time.Now()})
	return true
}

// appendRemove records a removal.
func (wl *writeLog) appendRemove(id uint64) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	if len(wl.entries) >= writeLogMaxEntries {
		wl.overflowed = true
		return false
	}
	wl.entries = append(wl.entries, logEntry{op: opRemove, id: id, timestamp: time.Now()})
	return true
}

// size returns the current entry count.
func (wl *writeLog) size() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return len(wl.entries)
}

// hasOverflowed reports whether an append was ever dropped.
func (wl *writeLog) hasOverflowed() bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return wl.overflowed
}

// drainFrom returns the entries at positions [from, len) without copying
// the vectors. The caller replays them before the log is cleared.
func (wl *writeLog) drainFrom(from int) []logEntry {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	if from >= len(wl.entries) {
		return nil
	}
	out := make([]logEntry, len(wl.entries)-from)
	copy(out, wl.entries[from:])
	return out
}

// clear resets the log.
func (wl *writeLog) clear() {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.entries = nil
	wl.overflowed = false
}
