// Package reindex implements the chunked pipeline that moves records from
// the source of truth into the current write-target index: primary-key
// ordered pagination, bounded bulk batches, per-type worker pools, and
// precise resume reporting.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/types"
	syncerr "github.com/helpfront/searchsync/pkg/errors"
	"github.com/helpfront/searchsync/pkg/logger"
	"github.com/helpfront/searchsync/pkg/metrics"
	"github.com/helpfront/searchsync/pkg/resilience"
)

// Options controls one reindex run. Zero values fall back to defaults.
type Options struct {
	// UpdatedAfter (exclusive) and UpdatedBefore (inclusive) bound the
	// run by update time.
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
	// Count caps the records processed per type; Percentage converts the
	// filtered total to a rounded absolute count. Count wins when both
	// are set and smaller.
	Count      int
	Percentage float64
	// SQLChunkSize is rows per source page; IndexChunkSize is documents
	// per bulk-write batch.
	SQLChunkSize   int
	IndexChunkSize int
	// Timeout bounds each bulk-write batch.
	Timeout time.Duration
	// Workers bounds concurrent batch submissions per document type.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.SQLChunkSize <= 0 {
		o.SQLChunkSize = 1000
	}
	if o.IndexChunkSize <= 0 {
		o.IndexChunkSize = 500
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

func (o Options) window() types.Window {
	return types.Window{UpdatedAfter: o.UpdatedAfter, UpdatedBefore: o.UpdatedBefore}
}

// Checkpointer stores resume hints. The redis client satisfies it; a nil
// checkpointer disables storage. Checkpoints are never read to drive
// pagination; every run recomputes its cursor from the source of truth.
type Checkpointer interface {
	SetCheckpoint(ctx context.Context, docType string, boundary time.Time) error
}

// Config wires the pipeline's optional collaborators.
type Config struct {
	Metrics     *metrics.Metrics
	Events      EventSink
	Checkpoints Checkpointer
	// BulkRetries bounds timeout retries per batch.
	BulkRetries int
}

// Pipeline executes reindex runs against a search engine.
type Pipeline struct {
	eng         search.Engine
	metrics     *metrics.Metrics
	events      EventSink
	checkpoints Checkpointer
	breaker     *resilience.CircuitBreaker
	bulkRetries int
	logger      *slog.Logger
}

func New(eng search.Engine, cfg Config) *Pipeline {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	retries := cfg.BulkRetries
	if retries <= 0 {
		retries = 3
	}
	p := &Pipeline{
		eng:         eng,
		metrics:     m,
		events:      cfg.Events,
		checkpoints: cfg.Checkpoints,
		bulkRetries: retries,
		logger:      logger.WithComponent("reindex"),
	}
	p.breaker = resilience.NewCircuitBreaker("bulk-write", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		},
	})
	return p
}

// Run reindexes the given document types. Types run concurrently; a fatal
// error in one type stops that type only and is recorded in its TypeReport.
// The returned Report always describes how far every type got.
func (p *Pipeline) Run(ctx context.Context, dts []*types.DocumentType, opts Options) (*Report, error) {
	if len(dts) == 0 {
		return nil, fmt.Errorf("no document types to reindex")
	}
	opts = opts.withDefaults()
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Types:   make([]TypeReport, len(dts)),
	}
	ctx = logger.WithRunID(ctx, report.RunID)
	log := logger.FromContext(ctx).With("component", "reindex")
	log.Info("reindex run starting",
		"doc_types", len(dts),
		"sql_chunk_size", opts.SQLChunkSize,
		"index_chunk_size", opts.IndexChunkSize,
		"workers", opts.Workers,
	)

	names := make([]string, len(dts))
	for i, dt := range dts {
		names[i] = dt.Name
	}
	p.publishRunEvent(ctx, RunEvent{Type: "run_started", RunID: report.RunID, DocTypes: names, At: report.Started})

	var g errgroup.Group
	for i, dt := range dts {
		i, dt := i, dt
		report.Types[i] = TypeReport{DocType: dt.Name}
		g.Go(func() error {
			p.runType(ctx, dt, opts, &report.Types[i])
			return nil
		})
	}
	g.Wait()

	report.Completed = time.Now().UTC()
	outcome := report.Outcome()
	p.metrics.ReindexRunsTotal.WithLabelValues(outcome).Inc()
	for i := range report.Types {
		p.publishDocFailures(ctx, report.RunID, &report.Types[i])
	}
	p.publishRunEvent(ctx, RunEvent{
		Type:     "run_completed",
		RunID:    report.RunID,
		DocTypes: names,
		At:       report.Completed,
		Indexed:  report.TotalIndexed(),
		Failed:   report.TotalFailed(),
		Outcome:  outcome,
	})
	log.Info("reindex run finished",
		"outcome", outcome,
		"indexed", report.TotalIndexed(),
		"failed", report.TotalFailed(),
		"duration", report.Completed.Sub(report.Started),
	)
	return report, nil
}

// batch is one bulk-write unit. Its key range and update-time range are
// computed before dispatch and never mutated concurrently.
type batch struct {
	seq     int
	docs    []types.Document
	minTime time.Time
	maxTime time.Time
}

func (p *Pipeline) runType(ctx context.Context, dt *types.DocumentType, opts Options, tr *TypeReport) {
	log := logger.FromContext(ctx).With("component", "reindex", "doc_type", dt.Name)

	target, ok, err := p.eng.Resolve(ctx, search.WriteAlias(dt.Name))
	if err != nil {
		tr.FatalErr = err
		return
	}
	if !ok {
		tr.FatalErr = syncerr.Newf(syncerr.ErrFatalTransport, "write alias for %s does not exist, run init first", dt.Name)
		return
	}
	tr.Index = target

	total, err := dt.Source.Count(ctx, opts.window())
	tr.SQLQueries++
	p.metrics.SourceQueryCount.WithLabelValues(dt.Name).Inc()
	if err != nil {
		tr.FatalErr = fmt.Errorf("counting %s records: %w", dt.Name, err)
		return
	}
	tr.Total = total
	tr.Capped = capRecords(total, opts)
	if tr.Capped == 0 {
		log.Info("nothing to reindex", "total", total)
		return
	}
	log.Info("reindexing", "index", target, "total", total, "capped", tr.Capped)

	tracker := newBoundaryTracker()
	var mu sync.Mutex // guards tr counters and failures

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan batch, opts.Workers)

	g.Go(func() error {
		defer close(batches)
		return p.produce(gctx, dt, opts, tr, tracker, batches, &mu)
	})
	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for b := range batches {
				indexed, failures, err := p.submit(gctx, dt.Name, target, b.docs, opts.Timeout)
				mu.Lock()
				tr.Batches++
				tr.Indexed += indexed
				tr.Failures = append(tr.Failures, failures...)
				mu.Unlock()
				if err != nil {
					return err
				}
				tracker.complete(b.seq)
			}
			return nil
		})
	}

	err = g.Wait()
	tr.CommittedThrough = tracker.committedThrough()
	if err != nil {
		tr.FatalErr = &syncerr.SyncError{
			Err:      unwrapSentinel(err),
			DocType:  dt.Name,
			Index:    target,
			Boundary: tr.CommittedThrough,
			Message:  err.Error(),
		}
		log.Error("reindex stopped early",
			"error", err,
			"committed_through", tr.CommittedThrough,
		)
		return
	}
	if p.checkpoints != nil && !tr.CommittedThrough.IsZero() {
		if cpErr := p.checkpoints.SetCheckpoint(ctx, dt.Name, tr.CommittedThrough); cpErr != nil {
			log.Warn("failed to store checkpoint", "error", cpErr)
		}
	}
	log.Info("type reindexed",
		"scanned", tr.Scanned,
		"indexed", tr.Indexed,
		"failed", len(tr.Failures),
		"pages", tr.Pages,
		"batches", tr.Batches,
		"sql_queries", tr.SQLQueries,
	)
}

// produce paginates the source in primary-key order, serializes rows, and
// emits bounded batches. Serialization failures are recorded and skipped;
// they never stop the run.
func (p *Pipeline) produce(ctx context.Context, dt *types.DocumentType, opts Options, tr *TypeReport, tracker *boundaryTracker, batches chan<- batch, mu *sync.Mutex) error {
	var (
		afterPK   int64
		remaining = tr.Capped
		seq       int
		pending   batch
	)
	window := opts.window()

	emit := func() error {
		pending.seq = seq
		tracker.emit(seq, pending.minTime, pending.maxTime)
		seq++
		select {
		case batches <- pending:
		case <-ctx.Done():
			return ctx.Err()
		}
		pending = batch{}
		return nil
	}

	for remaining > 0 {
		limit := opts.SQLChunkSize
		if remaining < limit {
			limit = remaining
		}
		records, err := dt.Source.Page(ctx, afterPK, limit, window)
		mu.Lock()
		tr.SQLQueries++
		mu.Unlock()
		p.metrics.SourceQueryCount.WithLabelValues(dt.Name).Inc()
		if err != nil {
			if len(pending.docs) > 0 {
				// Scanned but undispatched records count as uncommitted,
				// keeping the resume boundary behind their earliest
				// update time.
				tracker.emit(seq, pending.minTime, pending.maxTime)
			}
			return fmt.Errorf("paging %s after pk %d: %w", dt.Name, afterPK, err)
		}
		if len(records) == 0 {
			break // source exhausted
		}
		mu.Lock()
		tr.Pages++
		tr.Scanned += len(records)
		mu.Unlock()
		p.metrics.SourceChunksTotal.WithLabelValues(dt.Name).Inc()

		for _, rec := range records {
			doc, err := dt.Serialize(rec)
			if err != nil {
				var docErr syncerr.DocumentError
				if !errors.As(err, &docErr) {
					docErr = syncerr.DocumentError{
						DocType: dt.Name,
						DocID:   fmt.Sprintf("%d", rec.PK),
						Reason:  err.Error(),
					}
				}
				mu.Lock()
				tr.Failures = append(tr.Failures, docErr)
				mu.Unlock()
				p.metrics.DocsFailedTotal.WithLabelValues(dt.Name, "serialization").Inc()
				continue
			}
			if pending.minTime.IsZero() || rec.UpdatedAt.Before(pending.minTime) {
				pending.minTime = rec.UpdatedAt
			}
			if rec.UpdatedAt.After(pending.maxTime) {
				pending.maxTime = rec.UpdatedAt
			}
			pending.docs = append(pending.docs, doc)
			if len(pending.docs) == opts.IndexChunkSize {
				if err := emit(); err != nil {
					return err
				}
			}
		}
		afterPK = records[len(records)-1].PK
		remaining -= len(records)
	}
	if len(pending.docs) > 0 {
		return emit()
	}
	return nil
}

// submit commits one batch to the write target with a per-batch timeout,
// bounded retries on timeout (safe: writes are idempotent upserts), and a
// circuit breaker guarding the transport.
func (p *Pipeline) submit(ctx context.Context, docType, target string, docs []types.Document, timeout time.Duration) (int, []syncerr.DocumentError, error) {
	var result search.BulkResult
	started := time.Now()
	err := resilience.Retry(ctx, "bulk-write", resilience.RetryConfig{
		MaxAttempts: p.bulkRetries,
		Retryable: func(err error) bool {
			return errors.Is(err, context.DeadlineExceeded)
		},
	}, func() error {
		return resilience.WithTimeout(ctx, timeout, "bulk-write", func(tctx context.Context) error {
			return p.breaker.Execute(func() error {
				r, err := p.eng.Bulk(tctx, target, docs)
				if err != nil {
					return err
				}
				result = r
				return nil
			})
		})
	})
	p.metrics.BulkBatchDuration.WithLabelValues(docType).Observe(time.Since(started).Seconds())
	if err != nil {
		p.metrics.BulkBatchesTotal.WithLabelValues(docType, "failed").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, syncerr.Newf(syncerr.ErrBulkWriteTimeout, "batch of %d documents to %s: %v", len(docs), target, err)
		}
		if errors.Is(err, syncerr.ErrFatalTransport) || errors.Is(err, resilience.ErrCircuitOpen) {
			return 0, nil, err
		}
		return 0, nil, syncerr.Newf(syncerr.ErrFatalTransport, "batch of %d documents to %s: %v", len(docs), target, err)
	}
	p.metrics.BulkBatchesTotal.WithLabelValues(docType, "ok").Inc()
	p.metrics.DocsIndexedTotal.WithLabelValues(docType).Add(float64(result.Indexed))

	var failures []syncerr.DocumentError
	for _, f := range result.Failures {
		failures = append(failures, syncerr.DocumentError{DocType: docType, DocID: f.DocID, Reason: f.Reason})
		p.metrics.DocsFailedTotal.WithLabelValues(docType, "rejected").Inc()
	}
	return result.Indexed, failures, nil
}

func capRecords(total int, opts Options) int {
	capped := total
	if opts.Percentage > 0 {
		capped = int(math.Round(float64(total) * opts.Percentage / 100))
	}
	if opts.Count > 0 && opts.Count < capped {
		capped = opts.Count
	}
	return capped
}

// unwrapSentinel keeps the taxonomy sentinel when wrapping a worker error
// into the type's SyncError.
func unwrapSentinel(err error) error {
	for _, sentinel := range []error{
		syncerr.ErrBulkWriteTimeout,
		syncerr.ErrFatalTransport,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return syncerr.ErrFatalTransport
}
