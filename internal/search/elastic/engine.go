package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/types"
	"github.com/helpfront/searchsync/pkg/errors"
)

const (
	charFilterName    = "sync_char_map"
	synonymFilterName = "sync_synonyms"
	indexAnalyzer     = "sync_index"
	searchAnalyzer    = "sync_search"
)

// CreateIndex creates a physical index with the mapping and analysis
// settings applied.
func (c *Client) CreateIndex(ctx context.Context, name string, mapping types.Mapping, settings search.Settings) error {
	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   settings.Shards,
			"number_of_replicas": settings.Replicas,
			"analysis":           analysisBody(settings.Analysis),
		},
		"mappings": map[string]any{
			"properties": properties(mapping),
		},
	}
	resp, err := c.doJSON(ctx, http.MethodPut, "/"+name, body)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Newf(errors.ErrFatalTransport, "creating index %s: %s", name, reason(resp.body))
	}
	c.logger.Info("index created", "index", name)
	return nil
}

// UpdateMapping attempts an in-place mapping update. The engine decides
// compatibility; a rejection surfaces as ErrMappingConflict.
func (c *Client) UpdateMapping(ctx context.Context, index string, mapping types.Mapping) error {
	body := map[string]any{"properties": properties(mapping)}
	resp, err := c.doJSON(ctx, http.MethodPut, "/"+index+"/_mapping", body)
	if err != nil {
		return err
	}
	if resp.status == http.StatusBadRequest {
		return &errors.SyncError{Err: errors.ErrMappingConflict, Index: index, Message: reason(resp.body)}
	}
	if !resp.ok() {
		return errors.Newf(errors.ErrFatalTransport, "updating mapping on %s: %s", index, reason(resp.body))
	}
	return nil
}

// Resolve returns the single physical index behind an alias.
func (c *Client) Resolve(ctx context.Context, alias string) (string, bool, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/_alias/"+alias, nil)
	if err != nil {
		return "", false, err
	}
	if resp.status == http.StatusNotFound {
		return "", false, nil
	}
	if !resp.ok() {
		return "", false, errors.Newf(errors.ErrFatalTransport, "resolving alias %s: %s", alias, reason(resp.body))
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return "", false, fmt.Errorf("decoding alias response for %s: %w", alias, err)
	}
	if len(parsed) != 1 {
		return "", false, fmt.Errorf("alias %s resolves to %d indices, want exactly 1", alias, len(parsed))
	}
	for index := range parsed {
		return index, true, nil
	}
	return "", false, nil
}

// SwapAlias atomically repoints an alias to newIndex. The engine applies the
// add and remove actions as one unit, so the alias never resolves to zero or
// two indices mid-swap, and a rejected swap leaves the original target.
func (c *Client) SwapAlias(ctx context.Context, alias, newIndex string) error {
	current, exists, err := c.Resolve(ctx, alias)
	if err != nil {
		return err
	}
	actions := []map[string]any{
		{"add": map[string]any{"alias": alias, "index": newIndex}},
	}
	if exists && current != newIndex {
		actions = append(actions, map[string]any{
			"remove": map[string]any{"alias": alias, "index": current},
		})
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/_aliases", map[string]any{"actions": actions})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &errors.SyncError{Err: errors.ErrAliasSwapFailed, Index: newIndex,
			Message: fmt.Sprintf("alias %s: %s", alias, reason(resp.body))}
	}
	c.logger.Info("alias repointed", "alias", alias, "index", newIndex)
	return nil
}

// Bulk writes a batch of documents with upsert-by-ID semantics and reports
// per-document outcomes.
func (c *Client) Bulk(ctx context.Context, index string, docs []types.Document) (search.BulkResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if err := enc.Encode(map[string]any{"index": map[string]any{"_id": doc.ID}}); err != nil {
			return search.BulkResult{}, fmt.Errorf("encoding bulk action: %w", err)
		}
		if err := enc.Encode(doc.Fields); err != nil {
			return search.BulkResult{}, fmt.Errorf("encoding document %s: %w", doc.ID, err)
		}
	}
	resp, err := c.do(ctx, http.MethodPost, "/"+index+"/_bulk", "application/x-ndjson", buf.Bytes())
	if err != nil {
		return search.BulkResult{}, err
	}
	if !resp.ok() {
		return search.BulkResult{}, errors.Newf(errors.ErrFatalTransport, "bulk write to %s: %s", index, reason(resp.body))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return search.BulkResult{}, fmt.Errorf("decoding bulk response from %s: %w", index, err)
	}
	var result search.BulkResult
	for _, item := range parsed.Items {
		for _, outcome := range item {
			if outcome.Error != nil {
				result.Failures = append(result.Failures, search.BulkFailure{
					DocID:  outcome.ID,
					Reason: outcome.Error.Reason,
				})
			} else {
				result.Indexed++
			}
		}
	}
	return result, nil
}

// UpdateAnalysis pushes a live analyzer update. Synonym rules are query-time
// and reload in place; any character-mapping change is index-time and is
// rejected, since it would alter the stored token stream. The engine only
// accepts analysis settings on a closed index, so the write runs inside a
// close/open cycle.
func (c *Client) UpdateAnalysis(ctx context.Context, index string, analysis search.Analysis) error {
	current, err := c.currentAnalysis(ctx, index)
	if err != nil {
		return err
	}
	if !current.CharMappingsEqual(analysis) {
		return &errors.SyncError{Err: errors.ErrAnalyzerReloadRejected, Index: index,
			Message: "character mappings changed; requires write migration and full reindex"}
	}
	if err := c.setIndexState(ctx, index, "_close"); err != nil {
		return err
	}
	body := map[string]any{
		"analysis": map[string]any{
			"filter": map[string]any{
				synonymFilterName: synonymFilter(analysis.SynonymRules),
			},
		},
	}
	resp, putErr := c.doJSON(ctx, http.MethodPut, "/"+index+"/_settings", body)
	// The index must not stay closed, even when the settings write failed.
	openErr := c.setIndexState(ctx, index, "_open")
	if putErr != nil {
		return putErr
	}
	if !resp.ok() {
		return analysisError(index, resp)
	}
	if openErr != nil {
		return openErr
	}
	resp, err = c.doJSON(ctx, http.MethodPost, "/"+index+"/_reload_search_analyzers", nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return analysisError(index, resp)
	}
	c.logger.Info("search analyzers reloaded", "index", index)
	return nil
}

func (c *Client) setIndexState(ctx context.Context, index, op string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/"+index+"/"+op, nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Newf(errors.ErrFatalTransport, "%s on index %s: %s", op, index, reason(resp.body))
	}
	return nil
}

// analysisError classifies a failed analyzer update: engine rejections map
// to ErrAnalyzerReloadRejected, server-side failures to ErrFatalTransport.
func analysisError(index string, resp response) error {
	if resp.status >= http.StatusInternalServerError {
		return errors.Newf(errors.ErrFatalTransport, "analyzer update on %s: %s", index, reason(resp.body))
	}
	return &errors.SyncError{Err: errors.ErrAnalyzerReloadRejected, Index: index, Message: reason(resp.body)}
}

// Refresh makes recent writes visible to search.
func (c *Client) Refresh(ctx context.Context, index string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/"+index+"/_refresh", nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Newf(errors.ErrFatalTransport, "refreshing %s: %s", index, reason(resp.body))
	}
	return nil
}

// currentAnalysis reads the live analysis settings of an index.
func (c *Client) currentAnalysis(ctx context.Context, index string) (search.Analysis, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/"+index+"/_settings", nil)
	if err != nil {
		return search.Analysis{}, err
	}
	if !resp.ok() {
		return search.Analysis{}, errors.Newf(errors.ErrFatalTransport, "reading settings of %s: %s", index, reason(resp.body))
	}
	var parsed map[string]struct {
		Settings struct {
			Index struct {
				Analysis struct {
					CharFilter map[string]struct {
						Mappings []string `json:"mappings"`
					} `json:"char_filter"`
					Filter map[string]struct {
						Synonyms []string `json:"synonyms"`
					} `json:"filter"`
				} `json:"analysis"`
			} `json:"index"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return search.Analysis{}, fmt.Errorf("decoding settings of %s: %w", index, err)
	}
	var analysis search.Analysis
	for _, idx := range parsed {
		if cf, ok := idx.Settings.Index.Analysis.CharFilter[charFilterName]; ok {
			analysis.CharMappings = cf.Mappings
		}
		if f, ok := idx.Settings.Index.Analysis.Filter[synonymFilterName]; ok {
			analysis.SynonymRules = f.Synonyms
		}
	}
	return analysis, nil
}

// properties renders a mapping as engine field properties. Text fields use
// the sync analyzers so synonym expansion stays query-time only.
func properties(mapping types.Mapping) map[string]any {
	props := make(map[string]any, len(mapping))
	for name, kind := range mapping {
		field := map[string]any{"type": string(kind)}
		if kind == types.KindText {
			field["analyzer"] = indexAnalyzer
			field["search_analyzer"] = searchAnalyzer
		}
		props[name] = field
	}
	return props
}

// synonymFilter builds the updateable query-time synonym filter definition.
func synonymFilter(rules []string) map[string]any {
	if len(rules) == 0 {
		rules = []string{}
	}
	return map[string]any{
		"type":       "synonym_graph",
		"synonyms":   rules,
		"updateable": true,
	}
}

// analysisBody renders full creation-time analysis settings: the character
// filter, the synonym filter, and the index/search analyzer pair.
func analysisBody(analysis search.Analysis) map[string]any {
	charMappings := analysis.CharMappings
	if charMappings == nil {
		charMappings = []string{}
	}
	return map[string]any{
		"char_filter": map[string]any{
			charFilterName: map[string]any{
				"type":     "mapping",
				"mappings": charMappings,
			},
		},
		"filter": map[string]any{
			synonymFilterName: synonymFilter(analysis.SynonymRules),
		},
		"analyzer": map[string]any{
			indexAnalyzer: map[string]any{
				"type":        "custom",
				"tokenizer":   "standard",
				"char_filter": []string{charFilterName},
				"filter":      []string{"lowercase"},
			},
			searchAnalyzer: map[string]any{
				"type":        "custom",
				"tokenizer":   "standard",
				"char_filter": []string{charFilterName},
				"filter":      []string{"lowercase", synonymFilterName},
			},
		},
	}
}
