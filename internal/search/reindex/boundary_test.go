package reindex

import (
	"testing"
	"time"
)

func minute(n int) time.Time {
	return time.Date(2024, 1, 1, 0, n, 0, 0, time.UTC)
}

func TestBoundaryNothingCommitted(t *testing.T) {
	tr := newBoundaryTracker()
	if got := tr.committedThrough(); !got.IsZero() {
		t.Fatalf("empty tracker boundary = %v, want zero", got)
	}

	tr.emit(0, minute(1), minute(5))
	boundary := tr.committedThrough()
	if !boundary.Equal(minute(1).Add(-time.Nanosecond)) {
		t.Fatalf("boundary = %v, want just before the uncommitted batch", boundary)
	}
}

func TestBoundaryAllCommitted(t *testing.T) {
	tr := newBoundaryTracker()
	tr.emit(0, minute(1), minute(5))
	tr.emit(1, minute(3), minute(8))
	tr.complete(0)
	tr.complete(1)

	if got := tr.committedThrough(); !got.Equal(minute(8)) {
		t.Fatalf("boundary = %v, want the latest committed update time", got)
	}
}

// Batches commit out of order and primary-key order does not sort by update
// time: the boundary must stay just before the earliest update time of any
// batch still in flight.
func TestBoundaryOutOfOrderCommits(t *testing.T) {
	tr := newBoundaryTracker()
	tr.emit(0, minute(10), minute(20))
	tr.emit(1, minute(2), minute(30))
	tr.emit(2, minute(15), minute(40))
	tr.complete(0)
	tr.complete(2)

	got := tr.committedThrough()
	want := minute(2).Add(-time.Nanosecond)
	if !got.Equal(want) {
		t.Fatalf("boundary = %v, want %v (batch 1 uncommitted)", got, want)
	}

	tr.complete(1)
	if got := tr.committedThrough(); !got.Equal(minute(40)) {
		t.Fatalf("boundary after final commit = %v, want %v", got, minute(40))
	}
}
