package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/helpfront/searchsync/pkg/errors"
)

// Serializer turns a source record into an index-ready document. Failures
// carry the record's identity and never abort a reindex run.
type Serializer func(rec Record) (Document, error)

// MappingSerializer builds the standard serializer for a document type: every
// mapped field is copied from the record, and every date field passes through
// NormalizeTime so the index only ever stores timezone-aware instants.
func MappingSerializer(dt *DocumentType, loc *time.Location) Serializer {
	return func(rec Record) (Document, error) {
		fields := make(map[string]any, len(dt.Mapping))
		for name, kind := range dt.Mapping {
			value, ok := rec.Fields[name]
			if !ok || value == nil {
				continue
			}
			if kind == KindDate {
				t, ok := value.(time.Time)
				if !ok {
					return Document{}, errors.DocumentError{
						DocType: dt.Name,
						DocID:   strconv.FormatInt(rec.PK, 10),
						Reason:  fmt.Sprintf("field %s: expected timestamp, got %T", name, value),
					}
				}
				value = NormalizeTime(t, loc)
			}
			fields[name] = value
		}
		return Document{
			ID:     strconv.FormatInt(rec.PK, 10),
			Fields: fields,
		}, nil
	}
}

// NormalizeTime converts a possibly-naive instant to UTC. Database drivers
// hand back timestamp-without-timezone columns with their wall clock labelled
// UTC; those wall-clock fields are reinterpreted in loc, the platform's
// configured zone, and the result converted to UTC. Values carrying a real
// offset are converted directly. Applied on write only, never on read.
func NormalizeTime(t time.Time, loc *time.Location) time.Time {
	if t.Location() == time.UTC && loc != time.UTC {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.UTC()
}
