package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpfront/searchsync/internal/search/reindex"
	"github.com/helpfront/searchsync/pkg/errors"
)

var (
	reindexLimit         []string
	reindexUpdatedAfter  string
	reindexUpdatedBefore string
	reindexCount         int
	reindexPercentage    float64
	reindexSQLChunk      int
	reindexIndexChunk    int
	reindexTimeout       time.Duration
	reindexWorkers       int
	reindexPrintSQLCount bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Bulk-populate the search index from the source of truth",
	Long: `Pulls records from the database in stable primary-key order and commits
them to each type's current write-target index in bounded bulk batches.

Per-document failures are reported and never abort the run (exit code 2).
Fatal errors abort early and report the committed boundary so the run can be
resumed with --updated-after (exit code 1).`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringSliceVar(&reindexLimit, "limit", nil, "limit to specific document types")
	reindexCmd.Flags().StringVar(&reindexUpdatedAfter, "updated-after", "", "only records updated after this instant (RFC 3339, exclusive)")
	reindexCmd.Flags().StringVar(&reindexUpdatedBefore, "updated-before", "", "only records updated at or before this instant (RFC 3339)")
	reindexCmd.Flags().IntVar(&reindexCount, "count", 0, "cap the records processed per type")
	reindexCmd.Flags().Float64Var(&reindexPercentage, "percentage", 0, "process this percentage of the filtered records per type")
	reindexCmd.Flags().IntVar(&reindexSQLChunk, "sql-chunk-size", 0, "rows per source page (default from config)")
	reindexCmd.Flags().IntVar(&reindexIndexChunk, "index-chunk-size", 0, "documents per bulk-write batch (default from config)")
	reindexCmd.Flags().DurationVar(&reindexTimeout, "timeout", 0, "per-batch bulk write timeout (default from config)")
	reindexCmd.Flags().IntVar(&reindexWorkers, "workers", 0, "concurrent batch submissions per type (default from config)")
	reindexCmd.Flags().BoolVar(&reindexPrintSQLCount, "print-sql-count", false, "print the number of SQL queries issued per type")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	dts, err := a.registry.Limit(reindexLimit)
	if err != nil {
		return err
	}
	opts, err := reindexOptions(a)
	if err != nil {
		return err
	}

	report, err := a.pipeline.Run(cmd.Context(), dts, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tr := range report.Types {
		fmt.Fprintf(out, "%s: indexed %d/%d into %s (%d pages, %d batches)\n",
			tr.DocType, tr.Indexed, tr.Capped, tr.Index, tr.Pages, tr.Batches)
		if reindexPrintSQLCount {
			fmt.Fprintf(out, "%s: %d sql queries\n", tr.DocType, tr.SQLQueries)
		}
		for _, failure := range tr.Failures {
			fmt.Fprintf(out, "%s: document %s rejected: %s\n", tr.DocType, failure.DocID, failure.Reason)
		}
		if tr.FatalErr != nil {
			fmt.Fprintf(out, "%s: aborted: %v\n", tr.DocType, tr.FatalErr)
			if !tr.CommittedThrough.IsZero() {
				fmt.Fprintf(out, "%s: resume with --updated-after %s\n",
					tr.DocType, tr.CommittedThrough.Format(time.RFC3339Nano))
			}
		}
	}

	if fatal := report.FirstFatal(); fatal != nil {
		return fatal
	}
	exitCode = errors.ExitCode(nil, report.PartialFailures())
	return nil
}

func reindexOptions(a *app) (reindex.Options, error) {
	opts := reindex.Options{
		Count:          reindexCount,
		Percentage:     reindexPercentage,
		SQLChunkSize:   reindexSQLChunk,
		IndexChunkSize: reindexIndexChunk,
		Timeout:        reindexTimeout,
		Workers:        reindexWorkers,
	}
	if opts.SQLChunkSize == 0 {
		opts.SQLChunkSize = a.cfg.Sync.SQLChunkSize
	}
	if opts.IndexChunkSize == 0 {
		opts.IndexChunkSize = a.cfg.Sync.IndexChunkSize
	}
	if opts.Timeout == 0 {
		opts.Timeout = a.cfg.Sync.BulkTimeout
	}
	if opts.Workers == 0 {
		opts.Workers = a.cfg.Sync.Workers
	}
	if reindexUpdatedAfter != "" {
		t, err := time.Parse(time.RFC3339, reindexUpdatedAfter)
		if err != nil {
			return opts, fmt.Errorf("parsing --updated-after: %w", err)
		}
		opts.UpdatedAfter = t
	}
	if reindexUpdatedBefore != "" {
		t, err := time.Parse(time.RFC3339, reindexUpdatedBefore)
		if err != nil {
			return opts, fmt.Errorf("parsing --updated-before: %w", err)
		}
		opts.UpdatedBefore = t
	}
	return opts, nil
}
