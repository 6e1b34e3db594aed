package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/alias"
	"github.com/helpfront/searchsync/internal/search/memory"
	"github.com/helpfront/searchsync/internal/search/reindex"
	"github.com/helpfront/searchsync/internal/search/types"
	syncerr "github.com/helpfront/searchsync/pkg/errors"
)

func testSetup(t *testing.T, records []types.Record) (*memory.Engine, *alias.Manager, *types.DocumentType, *Orchestrator) {
	t.Helper()
	dt := &types.DocumentType{
		Name: "question",
		Mapping: types.Mapping{
			"title":   types.KindText,
			"updated": types.KindDate,
		},
		Source: &types.MemorySource{Records: records},
	}
	dt.Serialize = types.MappingSerializer(dt, time.UTC)

	eng := memory.New()
	manager := alias.NewManager(eng, search.Settings{Shards: 1}, nil, nil)
	pipeline := reindex.New(eng, reindex.Config{})
	return eng, manager, dt, New(manager, pipeline)
}

func testRecords(n int, start time.Time) []types.Record {
	records := make([]types.Record, 0, n)
	for i := 0; i < n; i++ {
		updated := start.Add(time.Duration(i) * time.Minute)
		records = append(records, types.Record{
			PK:        int64(i + 1),
			UpdatedAt: updated,
			Fields:    map[string]any{"title": "record", "updated": updated},
		})
	}
	return records
}

func TestFullMigration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, manager, dt, orch := testSetup(t, testRecords(25, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	oldWrite, _, err := manager.WriteTarget(ctx, "question")
	if err != nil {
		t.Fatal(err)
	}

	report, err := orch.FullMigration(ctx, dts, reindex.Options{SQLChunkSize: 10, IndexChunkSize: 10})
	if err != nil {
		t.Fatalf("FullMigration: %v", err)
	}
	if report.TotalIndexed() != 25 {
		t.Errorf("indexed %d, want 25", report.TotalIndexed())
	}

	write, _, err := manager.WriteTarget(ctx, "question")
	if err != nil {
		t.Fatal(err)
	}
	if write == oldWrite {
		t.Error("full migration did not create a new write generation")
	}
	read, ok, err := eng.Resolve(ctx, search.ReadAlias("question"))
	if err != nil || !ok {
		t.Fatalf("read alias missing: ok=%v err=%v", ok, err)
	}
	if read != write {
		t.Errorf("read alias %s not moved to new write target %s", read, write)
	}
	if got := eng.DocCount(write); got != 25 {
		t.Errorf("new generation holds %d documents, want 25", got)
	}
	// Documents land in the new generation, never the superseded one.
	if got := eng.DocCount(oldWrite); got != 0 {
		t.Errorf("old generation received %d documents", got)
	}
}

// Filters never apply to a full migration; the new generation must hold
// everything.
func TestFullMigrationClearsFilters(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, manager, dt, orch := testSetup(t, testRecords(25, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	report, err := orch.FullMigration(ctx, dts, reindex.Options{
		Count:        3,
		UpdatedAfter: start.Add(20 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalIndexed() != 25 {
		t.Errorf("indexed %d, want 25 despite caller filters", report.TotalIndexed())
	}
	write, _, _ := manager.WriteTarget(ctx, "question")
	if got := eng.DocCount(write); got != 25 {
		t.Errorf("new generation holds %d documents, want 25", got)
	}
}

// A fatal reindex halts the sequence: readers stay on the old generation.
func TestFullMigrationHaltsOnReindexFailure(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, manager, dt, orch := testSetup(t, testRecords(10, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	oldRead, _, err := eng.Resolve(ctx, search.ReadAlias("question"))
	if err != nil {
		t.Fatal(err)
	}

	eng.FailBulk = syncerr.Newf(syncerr.ErrFatalTransport, "node down")
	_, err = orch.FullMigration(ctx, dts, reindex.Options{Workers: 1})
	if err == nil {
		t.Fatal("expected fatal reindex to halt the migration")
	}
	if !strings.HasPrefix(err.Error(), "reindex:") {
		t.Errorf("error does not name the failed step: %v", err)
	}

	read, _, err := eng.Resolve(ctx, search.ReadAlias("question"))
	if err != nil {
		t.Fatal(err)
	}
	if read != oldRead {
		t.Errorf("read alias moved to %s despite halted migration", read)
	}
}

func TestFullMigrationHaltsOnWriteMigrationFailure(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, manager, dt, orch := testSetup(t, testRecords(5, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	eng.FailSwap = true
	_, err := orch.FullMigration(ctx, dts, reindex.Options{})
	if err == nil {
		t.Fatal("expected swap failure to halt the migration")
	}
	if !strings.HasPrefix(err.Error(), "migrate-writes:") {
		t.Errorf("error does not name the failed step: %v", err)
	}
	if !errors.Is(err, syncerr.ErrAliasSwapFailed) {
		t.Errorf("err = %v, want ErrAliasSwapFailed", err)
	}
}

func TestIncrementalUpdate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, manager, dt, orch := testSetup(t, testRecords(20, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	write, _, err := manager.WriteTarget(ctx, "question")
	if err != nil {
		t.Fatal(err)
	}

	since := start.Add(14 * time.Minute)
	report, err := orch.IncrementalUpdate(ctx, dts, since, reindex.Options{})
	if err != nil {
		t.Fatalf("IncrementalUpdate: %v", err)
	}
	if report.TotalIndexed() != 5 {
		t.Errorf("indexed %d, want the 5 records after the since bound", report.TotalIndexed())
	}
	if got := eng.DocCount(write); got != 5 {
		t.Errorf("write target holds %d documents, want 5", got)
	}
	if got := len(eng.Indices()); got != 1 {
		t.Errorf("incremental update created a new generation, have %d indices", got)
	}
}

func TestIncrementalUpdateMappingConflict(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, manager, dt, orch := testSetup(t, testRecords(5, start))
	ctx := context.Background()
	dts := []*types.DocumentType{dt}

	if err := manager.Initialize(ctx, dts, start); err != nil {
		t.Fatal(err)
	}
	dt.Mapping["title"] = types.KindKeyword
	_, err := orch.IncrementalUpdate(ctx, dts, start, reindex.Options{})
	if !errors.Is(err, syncerr.ErrMappingConflict) {
		t.Fatalf("err = %v, want ErrMappingConflict", err)
	}
}
