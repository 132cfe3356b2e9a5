// Package sync keeps the in-memory index converged with the durable
// catalog store: an incremental change-feed puller, a periodic
// reconciler that repairs drift, and a change notifier that fans
// document updates out over Kafka.
package sync

import (
	"sync"
	"time"
)

// Watermark tracks when the index last caught up to the store. Staleness
// is the time elapsed since the last moment the cursor matched the
// store's current revision.
type Watermark struct {
	mu         sync.RWMutex
	cursor     uint64
	caughtUp   time.Time
	everSynced bool
}

// NewWatermark starts at cursor 0, maximally stale.
func NewWatermark() *Watermark {
	return &Watermark{}
}

// Advance records that all revisions up to cursor are applied. caughtUp
// reports whether the cursor reached the store's head at that moment.
func (w *Watermark) Advance(cursor uint64, caughtUp bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cursor > w.cursor {
		w.cursor = cursor
	}
	if caughtUp {
		w.caughtUp = time.Now()
		w.everSynced = true
	}
}

// Cursor returns the last fully-applied revision.
func (w *Watermark) Cursor() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cursor
}

// Reset drops the cursor back to zero after a full rebuild is ordered.
func (w *Watermark) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = 0
	w.everSynced = false
}

// Staleness returns the elapsed time since the index last matched the
// store head, or a very large duration if it never has.
func (w *Watermark) Staleness() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.everSynced {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(w.caughtUp)
}
