package alias

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/memory"
	"github.com/helpfront/searchsync/internal/search/types"
	syncerr "github.com/helpfront/searchsync/pkg/errors"
)

func questionType() *types.DocumentType {
	return &types.DocumentType{
		Name: "question",
		Mapping: types.Mapping{
			"title":   types.KindText,
			"updated": types.KindDate,
		},
	}
}

func newTestManager(eng *memory.Engine) *Manager {
	return NewManager(eng, search.Settings{Shards: 1}, nil, nil)
}

func resolveBoth(t *testing.T, eng *memory.Engine, docType string) (write, read string) {
	t.Helper()
	ctx := context.Background()
	write, ok, err := eng.Resolve(ctx, search.WriteAlias(docType))
	if err != nil || !ok {
		t.Fatalf("write alias missing: ok=%v err=%v", ok, err)
	}
	read, ok, err = eng.Resolve(ctx, search.ReadAlias(docType))
	if err != nil || !ok {
		t.Fatalf("read alias missing: ok=%v err=%v", ok, err)
	}
	return write, read
}

// ---------------------------------------------------------------------------
// Initialize
// ---------------------------------------------------------------------------

func TestInitializeBootstrap(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(context.Background(), []*types.DocumentType{questionType()}, ts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	write, read := resolveBoth(t, eng, "question")
	if write != read {
		t.Errorf("bootstrap aliases diverge: write=%s read=%s", write, read)
	}
	if want := "question_20240301120000"; write != want {
		t.Errorf("write target = %s, want %s", write, want)
	}
	if got := len(eng.Indices()); got != 1 {
		t.Errorf("bootstrap created %d indices, want 1", got)
	}
}

func TestInitializeSecondRunUpdatesMappingInPlace(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	dt := questionType()
	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}

	dt.Mapping["product"] = types.KindKeyword
	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour)); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := len(eng.Indices()); got != 1 {
		t.Errorf("in-place update created a new index, have %d", got)
	}
}

func TestInitializeMappingConflict(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	dt := questionType()
	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}

	dt.Mapping["title"] = types.KindKeyword
	err := m.Initialize(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour))
	if !errors.Is(err, syncerr.ErrMappingConflict) {
		t.Fatalf("err = %v, want ErrMappingConflict", err)
	}
	if got := len(eng.Indices()); got != 1 {
		t.Errorf("conflict must not create a fallback index, have %d", got)
	}
}

// ---------------------------------------------------------------------------
// Migrations
// ---------------------------------------------------------------------------

func TestMigrateWritesLeavesReadersUntouched(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}
	oldWrite, oldRead := resolveBoth(t, eng, "question")

	if err := m.MigrateWrites(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour)); err != nil {
		t.Fatalf("MigrateWrites: %v", err)
	}
	write, read := resolveBoth(t, eng, "question")
	if write == oldWrite {
		t.Error("write alias still points at the old generation")
	}
	if read != oldRead {
		t.Errorf("read alias moved to %s during write migration", read)
	}
	if got := len(eng.Indices()); got != 2 {
		t.Errorf("have %d indices after write migration, want 2", got)
	}
}

func TestMigrateReadsFollowsWriteTarget(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}
	if err := m.MigrateWrites(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := m.MigrateReads(ctx, []*types.DocumentType{dt}); err != nil {
		t.Fatalf("MigrateReads: %v", err)
	}
	write, read := resolveBoth(t, eng, "question")
	if write != read {
		t.Errorf("after read migration write=%s read=%s, want equal", write, read)
	}
}

func TestMigrateReadsWithoutInit(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	if err := m.MigrateReads(context.Background(), []*types.DocumentType{questionType()}); err == nil {
		t.Fatal("expected error when write alias does not exist")
	}
}

func TestMigrateWritesSwapFailureKeepsAlias(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}
	oldWrite, _ := resolveBoth(t, eng, "question")

	eng.FailSwap = true
	err := m.MigrateWrites(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour))
	if !errors.Is(err, syncerr.ErrAliasSwapFailed) {
		t.Fatalf("err = %v, want ErrAliasSwapFailed", err)
	}
	eng.FailSwap = false

	write, _ := resolveBoth(t, eng, "question")
	if write != oldWrite {
		t.Errorf("failed swap moved the alias to %s", write)
	}
}

// ---------------------------------------------------------------------------
// Leases
// ---------------------------------------------------------------------------

func TestMigrationLeaseBlocksConcurrentRun(t *testing.T) {
	eng := memory.New()
	locks := NewLocalLocker()
	m := NewManager(eng, search.Settings{Shards: 1}, locks, nil)
	ctx := context.Background()

	ok, err := locks.AcquireLease(ctx, "question")
	if err != nil || !ok {
		t.Fatalf("pre-acquiring lease: ok=%v err=%v", ok, err)
	}
	defer locks.ReleaseLease(ctx, "question")

	err = m.Initialize(ctx, []*types.DocumentType{questionType()}, time.Now().UTC())
	if !errors.Is(err, syncerr.ErrMigrationLocked) {
		t.Fatalf("err = %v, want ErrMigrationLocked", err)
	}
}

func TestLeaseReleasedAfterMigration(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}
	if err := m.MigrateWrites(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour)); err != nil {
		t.Fatalf("lease not released by previous migration: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Analyzer reloads
// ---------------------------------------------------------------------------

func TestReloadAnalyzersBothTargetsMidMigration(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, ts); err != nil {
		t.Fatal(err)
	}
	if err := m.MigrateWrites(ctx, []*types.DocumentType{dt}, ts.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	write, read := resolveBoth(t, eng, "question")

	analysis := search.Analysis{SynonymRules: []string{"cache, cookies"}}
	if err := m.ReloadAnalyzers(ctx, []*types.DocumentType{dt}, analysis); err != nil {
		t.Fatalf("ReloadAnalyzers: %v", err)
	}
	for _, index := range []string{write, read} {
		got := eng.Analysis(index).SynonymRules
		if len(got) != 1 || got[0] != "cache, cookies" {
			t.Errorf("index %s synonym rules = %v", index, got)
		}
	}
}

func TestReloadAnalyzersRejectsCharMappingChange(t *testing.T) {
	eng := memory.New()
	m := newTestManager(eng)
	ctx := context.Background()
	dt := questionType()

	if err := m.Initialize(ctx, []*types.DocumentType{dt}, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	analysis := search.Analysis{CharMappings: []string{"’ => '"}}
	err := m.ReloadAnalyzers(ctx, []*types.DocumentType{dt}, analysis)
	if !errors.Is(err, syncerr.ErrAnalyzerReloadRejected) {
		t.Fatalf("err = %v, want ErrAnalyzerReloadRejected", err)
	}
}
