package reindex

import (
	"sync"
	"time"
)

type timeRange struct {
	min time.Time
	max time.Time
}

// boundaryTracker computes the safe resume boundary of a run. Batches commit
// out of order, and primary-key ordering does not sort by update time, so the
// boundary is the instant just before the earliest update time in any
// uncommitted batch; when everything committed it is the latest update time
// seen. Resuming with updatedAfter set to the boundary re-fetches every
// record that was not committed and none that was missed.
type boundaryTracker struct {
	mu      sync.Mutex
	emitted map[int]timeRange
	done    map[int]bool
}

func newBoundaryTracker() *boundaryTracker {
	return &boundaryTracker{
		emitted: make(map[int]timeRange),
		done:    make(map[int]bool),
	}
}

// emit registers a dispatched batch and its update-time range. Ranges are
// computed before dispatch and never mutated afterwards.
func (t *boundaryTracker) emit(seq int, min, max time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitted[seq] = timeRange{min: min, max: max}
}

// complete marks a batch as fully committed.
func (t *boundaryTracker) complete(seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[seq] = true
}

// committedThrough returns the safe resume boundary. Zero when nothing
// committed yet.
func (t *boundaryTracker) committedThrough() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	var maxCommitted, minUncommitted time.Time
	for seq, r := range t.emitted {
		if t.done[seq] {
			if r.max.After(maxCommitted) {
				maxCommitted = r.max
			}
		} else if minUncommitted.IsZero() || r.min.Before(minUncommitted) {
			minUncommitted = r.min
		}
	}
	if minUncommitted.IsZero() {
		return maxCommitted
	}
	return minUncommitted.Add(-time.Nanosecond)
}
