package types

import (
	"context"
	"errors"
	"testing"
	"time"

	syncerr "github.com/helpfront/searchsync/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

func TestMappingCompatible(t *testing.T) {
	base := Mapping{"title": KindText, "updated": KindDate}

	if !base.Compatible(Mapping{"title": KindText, "product": KindKeyword}) {
		t.Error("adding a new field must be compatible")
	}
	if base.Compatible(Mapping{"title": KindKeyword}) {
		t.Error("changing an existing field's kind must conflict")
	}
	if !base.Compatible(Mapping{}) {
		t.Error("empty update must be compatible")
	}
}

// ---------------------------------------------------------------------------
// Time normalization
// ---------------------------------------------------------------------------

func TestNormalizeTimeReinterpretsNaiveWallClock(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	// A timestamp-without-timezone column comes back with its wall clock
	// labelled UTC. 2024-01-15 10:00 Pacific is 18:00 UTC.
	naive := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	got := NormalizeTime(naive, pacific)
	want := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NormalizeTime = %v, want %v", got, want)
	}
}

func TestNormalizeTimeKeepsAwareInstants(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	aware := time.Date(2024, 1, 15, 10, 0, 0, 0, pacific)
	got := NormalizeTime(aware, pacific)
	if !got.Equal(aware) {
		t.Fatalf("aware instant changed: %v != %v", got, aware)
	}
	if got.Location() != time.UTC {
		t.Errorf("result not in UTC: %v", got.Location())
	}
}

func TestNormalizeTimeUTCZoneIsIdentity(t *testing.T) {
	naive := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if got := NormalizeTime(naive, time.UTC); !got.Equal(naive) {
		t.Fatalf("NormalizeTime in UTC zone = %v, want unchanged", got)
	}
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func testQuestionType() *DocumentType {
	dt := &DocumentType{
		Name: "question",
		Mapping: Mapping{
			"title":   KindText,
			"product": KindKeyword,
			"updated": KindDate,
		},
	}
	dt.Serialize = MappingSerializer(dt, time.UTC)
	return dt
}

func TestMappingSerializerCopiesMappedFields(t *testing.T) {
	dt := testQuestionType()
	updated := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	doc, err := dt.Serialize(Record{
		PK:        42,
		UpdatedAt: updated,
		Fields: map[string]any{
			"title":    "Crash on startup",
			"product":  "firefox",
			"updated":  updated,
			"internal": "not mapped",
		},
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if doc.ID != "42" {
		t.Errorf("doc ID = %q, want primary key as string", doc.ID)
	}
	if doc.Fields["title"] != "Crash on startup" {
		t.Errorf("title = %v", doc.Fields["title"])
	}
	if _, ok := doc.Fields["internal"]; ok {
		t.Error("unmapped field copied into the document")
	}
}

func TestMappingSerializerRejectsNonTimeDate(t *testing.T) {
	dt := testQuestionType()
	_, err := dt.Serialize(Record{
		PK:     7,
		Fields: map[string]any{"updated": "2024-01-15"},
	})
	var docErr syncerr.DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("err = %v, want DocumentError", err)
	}
	if docErr.DocID != "7" || docErr.DocType != "question" {
		t.Errorf("failure identity = %s/%s", docErr.DocType, docErr.DocID)
	}
}

func TestMappingSerializerSkipsNilFields(t *testing.T) {
	dt := testQuestionType()
	doc, err := dt.Serialize(Record{
		PK:     9,
		Fields: map[string]any{"title": "only title", "product": nil},
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, ok := doc.Fields["product"]; ok {
		t.Error("nil field should be omitted")
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistryPlatformTypes(t *testing.T) {
	r := NewRegistry(nil, time.UTC)
	all := r.All()
	if len(all) != 5 {
		t.Fatalf("registry has %d types, want 5", len(all))
	}
	for _, name := range []string{"question", "answer", "wiki_document", "profile", "forum_post"} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("Get(%s): %v", name, err)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(nil, time.UTC)
	_, err := r.Get("comment")
	if !errors.Is(err, syncerr.ErrDocTypeUnknown) {
		t.Fatalf("err = %v, want ErrDocTypeUnknown", err)
	}
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry(nil, time.UTC)

	subset, err := r.Limit([]string{"question", "answer"})
	if err != nil {
		t.Fatal(err)
	}
	if len(subset) != 2 || subset[0].Name != "question" || subset[1].Name != "answer" {
		t.Fatalf("Limit subset = %v", subset)
	}

	all, err := r.Limit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("Limit(nil) returned %d types, want all", len(all))
	}

	if _, err := r.Limit([]string{"question", "nope"}); !errors.Is(err, syncerr.ErrDocTypeUnknown) {
		t.Fatalf("err = %v, want ErrDocTypeUnknown for unknown name", err)
	}
}

// ---------------------------------------------------------------------------
// Memory source
// ---------------------------------------------------------------------------

func memRecords(n int, start time.Time) []Record {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, Record{
			PK:        int64(i + 1),
			UpdatedAt: start.Add(time.Duration(i) * time.Minute),
			Fields:    map[string]any{"title": "r"},
		})
	}
	return records
}

func TestMemorySourcePagination(t *testing.T) {
	src := &MemorySource{Records: memRecords(25, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	ctx := context.Background()

	var afterPK int64
	var total int
	for {
		page, err := src.Page(ctx, afterPK, 10, Window{})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if rec.PK <= afterPK {
				t.Fatalf("page not strictly ascending: pk %d after %d", rec.PK, afterPK)
			}
		}
		total += len(page)
		afterPK = page[len(page)-1].PK
	}
	if total != 25 {
		t.Fatalf("paginated %d records, want 25", total)
	}
}

func TestMemorySourceWindowBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &MemorySource{Records: memRecords(10, start)}
	ctx := context.Background()

	// UpdatedAfter is exclusive, UpdatedBefore inclusive.
	w := Window{UpdatedAfter: start.Add(2 * time.Minute), UpdatedBefore: start.Add(5 * time.Minute)}
	n, err := src.Count(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3 (minutes 3, 4, 5)", n)
	}

	page, err := src.Page(ctx, 0, 100, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].PK != 4 || page[2].PK != 6 {
		t.Fatalf("windowed page = %+v", page)
	}
}
