// Package errors defines the error taxonomy of the synchronization engine and
// maps it to process exit codes for the operational commands.
package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMappingConflict: the engine rejected an in-place mapping update
	// (field kind change on an existing field). Resolved by a write
	// migration, never automatically.
	ErrMappingConflict = errors.New("mapping conflict")
	// ErrAnalyzerReloadRejected: an index-time analysis change (character
	// mappings) was attempted as a live reload. Requires a write migration
	// plus full reindex.
	ErrAnalyzerReloadRejected = errors.New("analyzer reload rejected")
	// ErrAliasSwapFailed: the engine rejected an atomic alias repoint. The
	// original alias target is unchanged.
	ErrAliasSwapFailed = errors.New("alias swap failed")
	// ErrBulkWriteTimeout: a bulk-write batch exceeded its deadline. Retried
	// a bounded number of times before escalating.
	ErrBulkWriteTimeout = errors.New("bulk write timed out")
	// ErrFatalTransport: the write target is unreachable. Aborts the run.
	ErrFatalTransport = errors.New("search engine unreachable")
	// ErrDocTypeUnknown: a requested document type is not registered.
	ErrDocTypeUnknown = errors.New("unknown document type")
	// ErrMigrationLocked: another migration for the same document type
	// holds the lease.
	ErrMigrationLocked = errors.New("migration already in progress")
)

// SyncError wraps a sentinel with enough context for an operator to resume
// precisely: document type, physical index, and either a document identity or
// the last committed chunk boundary.
type SyncError struct {
	Err      error
	DocType  string
	Index    string
	DocID    string
	Boundary time.Time
	Message  string
}

func (e *SyncError) Error() string {
	s := e.Err.Error()
	if e.DocType != "" {
		s += fmt.Sprintf(" doc_type=%s", e.DocType)
	}
	if e.Index != "" {
		s += fmt.Sprintf(" index=%s", e.Index)
	}
	if e.DocID != "" {
		s += fmt.Sprintf(" doc_id=%s", e.DocID)
	}
	if !e.Boundary.IsZero() {
		s += fmt.Sprintf(" committed_through=%s", e.Boundary.Format(time.RFC3339))
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *SyncError {
	return &SyncError{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *SyncError {
	return &SyncError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// DocumentError records a single record that failed to serialize or was
// rejected by the engine. Document errors never abort a run.
type DocumentError struct {
	DocType string
	DocID   string
	Reason  string
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %s/%s rejected: %s", e.DocType, e.DocID, e.Reason)
}

// Exit codes for the operational commands.
const (
	ExitOK             = 0
	ExitFatal          = 1
	ExitPartialFailure = 2
)

// ExitCode maps an error (or nil) plus a partial-failure flag to the process
// exit status: 0 full success, 2 completed with per-document failures, 1
// aborted on a fatal error.
func ExitCode(err error, partialFailures bool) int {
	if err != nil {
		return ExitFatal
	}
	if partialFailures {
		return ExitPartialFailure
	}
	return ExitOK
}
