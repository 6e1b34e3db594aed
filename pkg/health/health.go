// Package health aggregates dependency probes for the operational HTTP
// endpoint that runs alongside metrics during long reindex runs. Each
// configured backend (PostgreSQL, Elasticsearch, Redis) registers a probe;
// probes run concurrently per request.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probe checks one dependency. A nil return means the dependency is
// reachable.
type Probe func(ctx context.Context) error

// DependencyStatus is the outcome of one probe.
type DependencyStatus struct {
	Up      bool   `json:"up"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Report aggregates all probe outcomes. Up is false when any dependency is
// down.
type Report struct {
	Up           bool                        `json:"up"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Timestamp    string                      `json:"timestamp"`
}

// Checker runs registered probes concurrently.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

func NewChecker() *Checker {
	return &Checker{probes: make(map[string]Probe)}
}

// Register adds a named dependency probe.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Run executes every probe and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]Probe, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.RUnlock()

	report := Report{
		Up:           true,
		Dependencies: make(map[string]DependencyStatus, len(probes)),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			start := time.Now()
			err := probe(ctx)
			status := DependencyStatus{
				Up:      err == nil,
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				status.Error = err.Error()
			}
			mu.Lock()
			report.Dependencies[name] = status
			if err != nil {
				report.Up = false
			}
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()
	return report
}

// Handler serves the aggregated report: 200 when every dependency is
// reachable, 503 otherwise.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Up {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
