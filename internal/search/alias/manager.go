// Package alias owns the indirection between logical document types and
// physical indices: one write alias and one read alias per type, repointed
// atomically by the engine during migrations.
package alias

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/types"
	"github.com/helpfront/searchsync/pkg/errors"
	"github.com/helpfront/searchsync/pkg/logger"
	"github.com/helpfront/searchsync/pkg/metrics"
)

// Manager sequences index creation, mapping updates, and alias repoints.
// Repoint atomicity belongs to the engine; the manager only invokes it
// correctly and serializes migrations per document type.
type Manager struct {
	eng      search.Engine
	settings search.Settings
	locks    Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewManager(eng search.Engine, settings search.Settings, locks Locker, m *metrics.Metrics) *Manager {
	if locks == nil {
		locks = NewLocalLocker()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Manager{
		eng:      eng,
		settings: settings,
		locks:    locks,
		metrics:  m,
		logger:   logger.WithComponent("alias-manager"),
	}
}

// Initialize brings each document type's aliases into existence. On first
// run it creates one timestamp-suffixed index and points both aliases at it.
// When the write alias already exists it attempts an in-place mapping update
// against the write target; an incompatible change surfaces as
// ErrMappingConflict with no automatic fallback, so no data is lost silently.
func (m *Manager) Initialize(ctx context.Context, dts []*types.DocumentType, ts time.Time) error {
	for _, dt := range dts {
		err := m.withLease(ctx, dt.Name, func() error {
			writeTarget, ok, err := m.eng.Resolve(ctx, search.WriteAlias(dt.Name))
			if err != nil {
				return err
			}
			if !ok {
				m.logger.Info("first run, creating index and aliases", "doc_type", dt.Name)
				index, err := m.createGeneration(ctx, dt, ts)
				if err != nil {
					return err
				}
				if err := m.eng.SwapAlias(ctx, search.WriteAlias(dt.Name), index); err != nil {
					return err
				}
				return m.eng.SwapAlias(ctx, search.ReadAlias(dt.Name), index)
			}
			m.logger.Info("updating mapping in place", "doc_type", dt.Name, "index", writeTarget)
			return m.eng.UpdateMapping(ctx, writeTarget, dt.Mapping)
		})
		if err != nil {
			return fmt.Errorf("initializing %s: %w", dt.Name, err)
		}
	}
	return nil
}

// MigrateWrites creates a fresh index generation per type and atomically
// repoints the write alias at it. The read alias is untouched, so old data
// stays visible to readers until MigrateReads. Re-running is an explicit
// operator action and simply creates another generation.
func (m *Manager) MigrateWrites(ctx context.Context, dts []*types.DocumentType, ts time.Time) error {
	for _, dt := range dts {
		err := m.withLease(ctx, dt.Name, func() error {
			index, err := m.createGeneration(ctx, dt, ts)
			if err != nil {
				return err
			}
			if err := m.eng.SwapAlias(ctx, search.WriteAlias(dt.Name), index); err != nil {
				return err
			}
			m.metrics.MigrationsTotal.WithLabelValues(dt.Name, "write").Inc()
			m.logger.Info("write alias migrated", "doc_type", dt.Name, "index", index)
			return nil
		})
		if err != nil {
			return fmt.Errorf("migrating writes for %s: %w", dt.Name, err)
		}
	}
	return nil
}

// MigrateReads atomically repoints each type's read alias to wherever its
// write alias currently points. Superseded physical indices are left in
// place; cleanup is a deliberate external concern.
func (m *Manager) MigrateReads(ctx context.Context, dts []*types.DocumentType) error {
	for _, dt := range dts {
		err := m.withLease(ctx, dt.Name, func() error {
			writeTarget, ok, err := m.eng.Resolve(ctx, search.WriteAlias(dt.Name))
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf(errors.ErrFatalTransport, "write alias for %s does not exist, run init first", dt.Name)
			}
			if err := m.eng.SwapAlias(ctx, search.ReadAlias(dt.Name), writeTarget); err != nil {
				return err
			}
			m.metrics.MigrationsTotal.WithLabelValues(dt.Name, "read").Inc()
			m.logger.Info("read alias migrated", "doc_type", dt.Name, "index", writeTarget)
			return nil
		})
		if err != nil {
			return fmt.Errorf("migrating reads for %s: %w", dt.Name, err)
		}
	}
	return nil
}

// ReloadAnalyzers pushes recompiled analyzer configuration to the index
// behind each type's read alias, and to the write target too when the two
// differ mid-migration. Character-mapping changes are rejected by the engine
// as index-time changes.
func (m *Manager) ReloadAnalyzers(ctx context.Context, dts []*types.DocumentType, analysis search.Analysis) error {
	for _, dt := range dts {
		readTarget, readOK, err := m.eng.Resolve(ctx, search.ReadAlias(dt.Name))
		if err != nil {
			return err
		}
		writeTarget, writeOK, err := m.eng.Resolve(ctx, search.WriteAlias(dt.Name))
		if err != nil {
			return err
		}
		if !readOK && !writeOK {
			return errors.Newf(errors.ErrFatalTransport, "no aliases for %s, run init first", dt.Name)
		}
		targets := make([]string, 0, 2)
		if readOK {
			targets = append(targets, readTarget)
		}
		if writeOK && writeTarget != readTarget {
			targets = append(targets, writeTarget)
		}
		for _, target := range targets {
			if err := m.eng.UpdateAnalysis(ctx, target, analysis); err != nil {
				return fmt.Errorf("reloading analyzers for %s: %w", dt.Name, err)
			}
			m.logger.Info("analyzers reloaded", "doc_type", dt.Name, "index", target)
		}
	}
	return nil
}

// WriteTarget resolves the physical index currently backing a type's write
// alias.
func (m *Manager) WriteTarget(ctx context.Context, docType string) (string, bool, error) {
	return m.eng.Resolve(ctx, search.WriteAlias(docType))
}

func (m *Manager) createGeneration(ctx context.Context, dt *types.DocumentType, ts time.Time) (string, error) {
	index := search.IndexName(dt.Name, ts)
	if err := m.eng.CreateIndex(ctx, index, dt.Mapping, m.settings); err != nil {
		return "", err
	}
	return index, nil
}

func (m *Manager) withLease(ctx context.Context, docType string, fn func() error) error {
	ok, err := m.locks.AcquireLease(ctx, docType)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf(errors.ErrMigrationLocked, "%s", docType)
	}
	defer func() {
		if err := m.locks.ReleaseLease(ctx, docType); err != nil {
			m.logger.Warn("failed to release migration lease", "doc_type", docType, "error", err)
		}
	}()
	return fn()
}
