// Package types holds the document type registry: the static table mapping
// each logical document kind to its index mapping, its source-of-truth query,
// and its serializer.
package types

// FieldKind is the index-level type of a mapped field.
type FieldKind string

const (
	KindText    FieldKind = "text"
	KindKeyword FieldKind = "keyword"
	KindDate    FieldKind = "date"
	KindLong    FieldKind = "long"
	KindBool    FieldKind = "boolean"
)

// Mapping maps field names to their index kinds. Date fields always store
// timezone-aware instants; naive source values are converted at serialization.
type Mapping map[string]FieldKind

// Compatible reports whether every field present in both mappings has the
// same kind. New fields are always compatible; kind changes never are.
func (m Mapping) Compatible(next Mapping) bool {
	for name, kind := range next {
		if existing, ok := m[name]; ok && existing != kind {
			return false
		}
	}
	return true
}

// Clone returns a copy of the mapping merged with next's new fields. Used by
// in-place updates after a compatibility check.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for name, kind := range m {
		out[name] = kind
	}
	return out
}
