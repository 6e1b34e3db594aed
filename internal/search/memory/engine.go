// Package memory implements the search engine port against in-process maps.
// It backs tests and local development; behaviour mirrors the real engine
// where the port's contract is concerned (upsert by document ID, atomic alias
// swaps, mapping-conflict and analyzer-reload rejections).
package memory

import (
	"context"
	"sync"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/types"
	"github.com/helpfront/searchsync/pkg/errors"
)

type index struct {
	mapping  types.Mapping
	analysis search.Analysis
	docs     map[string]types.Document
}

// Engine is an in-memory search.Engine. The exported hook fields inject
// failures for tests; all are optional.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]*index
	aliases map[string]string

	// FailBulk makes every Bulk call fail with the given error.
	FailBulk error
	// RejectDoc, when set, returns a non-empty rejection reason for
	// documents the bulk write should refuse.
	RejectDoc func(doc types.Document) string
	// FailSwap makes SwapAlias fail, leaving the alias unchanged.
	FailSwap bool
	// BulkCalls counts Bulk invocations (batch count assertions).
	BulkCalls int
}

func New() *Engine {
	return &Engine{
		indices: make(map[string]*index),
		aliases: make(map[string]string),
	}
}

func (e *Engine) CreateIndex(_ context.Context, name string, mapping types.Mapping, settings search.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.indices[name]; exists {
		return errors.Newf(errors.ErrFatalTransport, "index %s already exists", name)
	}
	e.indices[name] = &index{
		mapping:  mapping.Clone(),
		analysis: settings.Analysis,
		docs:     make(map[string]types.Document),
	}
	return nil
}

// UpdateMapping applies an in-place mapping update. The engine-defined
// compatibility rule here is: a kind change on an existing field conflicts.
func (e *Engine) UpdateMapping(_ context.Context, name string, mapping types.Mapping) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[name]
	if !ok {
		return errors.Newf(errors.ErrFatalTransport, "index %s does not exist", name)
	}
	if !idx.mapping.Compatible(mapping) {
		return &errors.SyncError{Err: errors.ErrMappingConflict, Index: name}
	}
	for field, kind := range mapping {
		idx.mapping[field] = kind
	}
	return nil
}

func (e *Engine) Resolve(_ context.Context, alias string) (string, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	target, ok := e.aliases[alias]
	return target, ok, nil
}

func (e *Engine) SwapAlias(_ context.Context, alias, newIndex string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailSwap {
		return &errors.SyncError{Err: errors.ErrAliasSwapFailed, Index: newIndex, Message: "injected swap failure"}
	}
	if _, ok := e.indices[newIndex]; !ok {
		return &errors.SyncError{Err: errors.ErrAliasSwapFailed, Index: newIndex, Message: "target index does not exist"}
	}
	e.aliases[alias] = newIndex
	return nil
}

func (e *Engine) Bulk(_ context.Context, name string, docs []types.Document) (search.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BulkCalls++
	if e.FailBulk != nil {
		return search.BulkResult{}, e.FailBulk
	}
	idx, ok := e.indices[name]
	if !ok {
		return search.BulkResult{}, errors.Newf(errors.ErrFatalTransport, "index %s does not exist", name)
	}
	var result search.BulkResult
	for _, doc := range docs {
		if e.RejectDoc != nil {
			if reason := e.RejectDoc(doc); reason != "" {
				result.Failures = append(result.Failures, search.BulkFailure{DocID: doc.ID, Reason: reason})
				continue
			}
		}
		idx.docs[doc.ID] = doc
		result.Indexed++
	}
	return result, nil
}

func (e *Engine) UpdateAnalysis(_ context.Context, name string, analysis search.Analysis) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[name]
	if !ok {
		return errors.Newf(errors.ErrFatalTransport, "index %s does not exist", name)
	}
	if !idx.analysis.CharMappingsEqual(analysis) {
		return &errors.SyncError{Err: errors.ErrAnalyzerReloadRejected, Index: name,
			Message: "character mappings changed; requires write migration and full reindex"}
	}
	idx.analysis.SynonymRules = append([]string(nil), analysis.SynonymRules...)
	return nil
}

func (e *Engine) Refresh(_ context.Context, _ string) error {
	return nil
}

// DocCount returns the number of documents stored in a physical index.
func (e *Engine) DocCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return 0
	}
	return len(idx.docs)
}

// Doc returns a stored document by ID.
func (e *Engine) Doc(name, id string) (types.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return types.Document{}, false
	}
	doc, ok := idx.docs[id]
	return doc, ok
}

// Indices lists the physical index names in existence.
func (e *Engine) Indices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.indices))
	for name := range e.indices {
		out = append(out, name)
	}
	return out
}

// Analysis returns the live analysis configuration of an index.
func (e *Engine) Analysis(name string) search.Analysis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return search.Analysis{}
	}
	return idx.analysis
}
