package types

import (
	"database/sql"
	"time"

	"github.com/helpfront/searchsync/pkg/errors"
)

// DocumentType binds a logical document kind to its mapping, its source of
// truth, and its serializer.
type DocumentType struct {
	Name      string
	Mapping   Mapping
	Source    Source
	Serialize Serializer
}

// Registry is the immutable table of document types, built once at process
// start.
type Registry struct {
	order  []string
	byName map[string]*DocumentType
	loc    *time.Location
}

// NewRegistry builds the platform's document types against the given
// database. loc is the zone naive source timestamps are assumed to be in.
func NewRegistry(db *sql.DB, loc *time.Location) *Registry {
	return NewRegistryWith(loc, platformTypes(db, loc)...)
}

// NewRegistryWith builds a registry from explicit document types. Tests use
// it to inject in-memory sources.
func NewRegistryWith(loc *time.Location, dts ...*DocumentType) *Registry {
	r := &Registry{
		byName: make(map[string]*DocumentType, len(dts)),
		loc:    loc,
	}
	for _, dt := range dts {
		r.order = append(r.order, dt.Name)
		r.byName[dt.Name] = dt
	}
	return r
}

// Location returns the configured default zone for naive timestamps.
func (r *Registry) Location() *time.Location {
	return r.loc
}

// All returns every registered document type in registration order.
func (r *Registry) All() []*DocumentType {
	out := make([]*DocumentType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Get returns the document type with the given name.
func (r *Registry) Get(name string) (*DocumentType, error) {
	dt, ok := r.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrDocTypeUnknown, "%s", name)
	}
	return dt, nil
}

// Limit returns the subset of types named in names, or all types when names
// is empty. Unknown names are an error.
func (r *Registry) Limit(names []string) ([]*DocumentType, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]*DocumentType, 0, len(names))
	for _, name := range names {
		dt, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, nil
}

// platformTypes is the static table of the support platform's indexed kinds.
func platformTypes(db *sql.DB, loc *time.Location) []*DocumentType {
	build := func(name, table string, mapping Mapping, columns []string) *DocumentType {
		dt := &DocumentType{
			Name:    name,
			Mapping: mapping,
			Source: &SQLSource{
				DB:            db,
				Table:         table,
				PKColumn:      "id",
				UpdatedColumn: "updated",
				Columns:       columns,
			},
		}
		dt.Serialize = MappingSerializer(dt, loc)
		return dt
	}

	return []*DocumentType{
		build("question", "questions_question", Mapping{
			"title":      KindText,
			"content":    KindText,
			"creator_id": KindLong,
			"product":    KindKeyword,
			"topic":      KindKeyword,
			"locale":     KindKeyword,
			"is_solved":  KindBool,
			"created":    KindDate,
			"updated":    KindDate,
		}, []string{"title", "content", "creator_id", "product", "topic", "locale", "is_solved", "created"}),

		build("answer", "questions_answer", Mapping{
			"content":     KindText,
			"question_id": KindLong,
			"creator_id":  KindLong,
			"locale":      KindKeyword,
			"is_accepted": KindBool,
			"created":     KindDate,
			"updated":     KindDate,
		}, []string{"content", "question_id", "creator_id", "locale", "is_accepted", "created"}),

		build("wiki_document", "wiki_document", Mapping{
			"title":    KindText,
			"summary":  KindText,
			"content":  KindText,
			"slug":     KindKeyword,
			"locale":   KindKeyword,
			"category": KindKeyword,
			"updated":  KindDate,
		}, []string{"title", "summary", "content", "slug", "locale", "category"}),

		build("profile", "users_profile", Mapping{
			"username":     KindKeyword,
			"display_name": KindText,
			"locale":       KindKeyword,
			"last_active":  KindDate,
			"updated":      KindDate,
		}, []string{"username", "display_name", "locale", "last_active"}),

		build("forum_post", "forums_post", Mapping{
			"content":   KindText,
			"thread_id": KindLong,
			"author_id": KindLong,
			"forum":     KindKeyword,
			"created":   KindDate,
			"updated":   KindDate,
		}, []string{"content", "thread_id", "author_id", "forum", "created"}),
	}
}
