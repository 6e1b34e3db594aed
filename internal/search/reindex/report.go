package reindex

import (
	"time"

	"github.com/helpfront/searchsync/pkg/errors"
)

// TypeReport describes one document type's outcome within a run.
type TypeReport struct {
	DocType string
	// Index is the physical write target the run committed to.
	Index string
	// Total is the number of source rows matching the filters before any
	// count or percentage cap.
	Total int
	// Capped is the number of rows the run set out to process.
	Capped int
	// Scanned and Indexed count rows fetched and documents committed.
	Scanned int
	Indexed int
	Pages      int
	Batches    int
	SQLQueries int
	// Failures lists per-document errors. They never abort a run.
	Failures []errors.DocumentError
	// CommittedThrough is the update-time boundary through which every
	// record is known committed; an operator resumes with
	// updatedAfter set to this value.
	CommittedThrough time.Time
	// FatalErr is set when the run stopped early for this type.
	FatalErr error
}

// Report is the outcome of one reindex run.
type Report struct {
	RunID     string
	Started   time.Time
	Completed time.Time
	Types     []TypeReport
}

// PartialFailures reports whether any per-document failure occurred.
func (r *Report) PartialFailures() bool {
	for _, tr := range r.Types {
		if len(tr.Failures) > 0 {
			return true
		}
	}
	return false
}

// FirstFatal returns the first fatal error across types, or nil.
func (r *Report) FirstFatal() error {
	for _, tr := range r.Types {
		if tr.FatalErr != nil {
			return tr.FatalErr
		}
	}
	return nil
}

// Outcome classifies the run: success, partial, or fatal.
func (r *Report) Outcome() string {
	if r.FirstFatal() != nil {
		return "fatal"
	}
	if r.PartialFailures() {
		return "partial"
	}
	return "success"
}

// TotalIndexed sums committed documents across types.
func (r *Report) TotalIndexed() int {
	n := 0
	for _, tr := range r.Types {
		n += tr.Indexed
	}
	return n
}

// TotalFailed sums per-document failures across types.
func (r *Report) TotalFailed() int {
	n := 0
	for _, tr := range r.Types {
		n += len(tr.Failures)
	}
	return n
}
