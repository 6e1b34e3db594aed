package alias

import (
	"context"
	"sync"
)

// Locker serializes migrations per document type. Migrations for different
// types are independent and may run concurrently; two migrations for the
// same type must never be in flight together. The redis client satisfies
// this interface for cross-process coordination.
type Locker interface {
	AcquireLease(ctx context.Context, docType string) (bool, error)
	ReleaseLease(ctx context.Context, docType string) error
}

// LocalLocker is a process-local Locker used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) AcquireLease(_ context.Context, docType string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[docType] {
		return false, nil
	}
	l.held[docType] = true
	return true, nil
}

func (l *LocalLocker) ReleaseLease(_ context.Context, docType string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, docType)
	return nil
}
