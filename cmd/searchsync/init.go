package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	initLimit           []string
	initMigrateWrites   bool
	initMigrateReads    bool
	initReloadAnalyzers bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Synchronize index schemas and aliases",
	Long: `Initializes or updates each document type's index and aliases.

With no flags, first-time types get a fresh timestamp-suffixed index with
both aliases pointing at it, and existing types get an in-place mapping
update (failing on incompatible changes). --migrate-writes creates a new
index generation and repoints the write alias; --migrate-reads repoints the
read alias at the current write target; --reload-search-analyzers pushes
recompiled synonym configuration to the live indices.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringSliceVar(&initLimit, "limit", nil, "limit to specific document types")
	initCmd.Flags().BoolVar(&initMigrateWrites, "migrate-writes", false, "create a new index and point the write alias at it")
	initCmd.Flags().BoolVar(&initMigrateReads, "migrate-reads", false, "point the read alias where the write alias points")
	initCmd.Flags().BoolVar(&initReloadAnalyzers, "reload-search-analyzers", false, "reload search analyzers (used when changing synonyms)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	dts, err := a.registry.Limit(initLimit)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ts := time.Now().UTC()

	if !initMigrateWrites && !initMigrateReads {
		if err := a.manager.Initialize(ctx, dts, ts); err != nil {
			return err
		}
	}
	if initMigrateWrites {
		if err := a.manager.MigrateWrites(ctx, dts, ts); err != nil {
			return err
		}
	}
	if initMigrateReads {
		if err := a.manager.MigrateReads(ctx, dts); err != nil {
			return err
		}
	}
	if initReloadAnalyzers {
		if err := a.manager.ReloadAnalyzers(ctx, dts, a.compiled.Analysis); err != nil {
			return err
		}
	}

	for _, dt := range dts {
		index, ok, err := a.manager.WriteTarget(ctx, dt.Name)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: write alias -> %s\n", dt.Name, index)
		}
	}
	return nil
}
