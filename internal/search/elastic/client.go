// Package elastic implements the search engine port over the Elasticsearch
// REST API with net/http. Only the handful of endpoints the sync engine
// consumes are covered: index creation, in-place mapping updates, atomic
// alias actions, bulk writes, live analyzer updates, and refresh.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/helpfront/searchsync/pkg/config"
	"github.com/helpfront/searchsync/pkg/errors"
	"github.com/helpfront/searchsync/pkg/logger"
)

// Client talks to one Elasticsearch cluster.
type Client struct {
	addresses []string
	username  string
	password  string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a Client from configuration. Addresses are tried in
// order when a node is unreachable.
func NewClient(cfg config.ElasticsearchConfig) *Client {
	return &Client{
		addresses: cfg.Addresses,
		username:  cfg.Username,
		password:  cfg.Password,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.WithComponent("elastic"),
	}
}

// response is a decoded engine reply: status code plus raw body.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do sends a request to the first reachable node. Connection-level failures
// on every node surface as ErrFatalTransport; context cancellation and
// deadline errors pass through untouched so callers can classify timeouts.
func (c *Client) do(ctx context.Context, method, path string, contentType string, body []byte) (response, error) {
	var lastErr error
	for _, addr := range c.addresses {
		req, err := http.NewRequestWithContext(ctx, method, addr+path, bytes.NewReader(body))
		if err != nil {
			return response{}, fmt.Errorf("building %s %s: %w", method, path, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("node unreachable, trying next", "addr", addr, "error", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return response{}, fmt.Errorf("reading %s %s response: %w", method, path, err)
		}
		return response{status: resp.StatusCode, body: data}, nil
	}
	return response{}, errors.Newf(errors.ErrFatalTransport, "%s %s: no reachable node: %v", method, path, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
	}
	return c.do(ctx, method, path, "application/json", data)
}

// Ping probes the cluster root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/", "", nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Newf(errors.ErrFatalTransport, "ping: %s", reason(resp.body))
	}
	return nil
}

// reason extracts the error reason from an engine error body, falling back
// to the raw body.
func reason(body []byte) string {
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Reason != "" {
		return parsed.Error.Reason
	}
	return string(body)
}
