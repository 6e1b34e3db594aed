// Package search defines the port to the external search engine. The engine
// is a black box: it owns mapping-compatibility decisions, alias atomicity,
// and per-document bulk outcomes. Implementations live in the elastic and
// memory subpackages.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/helpfront/searchsync/internal/search/types"
)

// Settings carries physical index settings applied at creation.
type Settings struct {
	Shards   int
	Replicas int
	Analysis Analysis
}

// Analysis is the compiled analyzer configuration for an index: query-time
// synonym rules plus index-time character mappings. Synonym rules can be
// reloaded into a live index; character mappings cannot, since they alter the
// stored token stream.
type Analysis struct {
	SynonymRules []string
	CharMappings []string
}

// CharMappingsEqual reports whether two analysis configurations agree on
// their character mappings. Order matters; mappings are applied in sequence
// before tokenization.
func (a Analysis) CharMappingsEqual(other Analysis) bool {
	if len(a.CharMappings) != len(other.CharMappings) {
		return false
	}
	for i := range a.CharMappings {
		if a.CharMappings[i] != other.CharMappings[i] {
			return false
		}
	}
	return true
}

// BulkFailure is one rejected document from a bulk write.
type BulkFailure struct {
	DocID  string
	Reason string
}

// BulkResult reports per-document outcomes of a bulk write. A batch with
// failures still commits its successful documents.
type BulkResult struct {
	Indexed  int
	Failures []BulkFailure
}

// Engine is the consumed search-engine interface.
//
// SwapAlias is atomic at the engine boundary: the alias never momentarily
// resolves to zero or two indices, and a failed swap leaves the original
// target untouched. UpdateMapping returns errors.ErrMappingConflict when the
// engine decides the change cannot be applied in place; the rule it uses is
// engine-defined and treated as opaque here. UpdateAnalysis returns
// errors.ErrAnalyzerReloadRejected when the change has no in-place update
// path (always the case for character-mapping changes).
type Engine interface {
	CreateIndex(ctx context.Context, name string, mapping types.Mapping, settings Settings) error
	UpdateMapping(ctx context.Context, index string, mapping types.Mapping) error
	Resolve(ctx context.Context, alias string) (index string, ok bool, err error)
	SwapAlias(ctx context.Context, alias, newIndex string) error
	Bulk(ctx context.Context, index string, docs []types.Document) (BulkResult, error)
	UpdateAnalysis(ctx context.Context, index string, analysis Analysis) error
	Refresh(ctx context.Context, index string) error
}

// WriteAlias returns the write-indirection alias for a document type.
func WriteAlias(docType string) string {
	return docType + "_write"
}

// ReadAlias returns the read-indirection alias for a document type.
func ReadAlias(docType string) string {
	return docType + "_read"
}

// IndexName returns the timestamp-suffixed physical index name for a new
// generation of a document type's index.
func IndexName(docType string, ts time.Time) string {
	return fmt.Sprintf("%s_%s", docType, ts.UTC().Format("20060102150405"))
}
