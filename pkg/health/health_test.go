package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesProbes(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", func(ctx context.Context) error { return nil })
	c.Register("elasticsearch", func(ctx context.Context) error { return errors.New("no reachable node") })

	report := c.Run(context.Background())
	if report.Up {
		t.Error("report up despite a failing dependency")
	}
	if !report.Dependencies["postgres"].Up {
		t.Error("postgres reported down")
	}
	es := report.Dependencies["elasticsearch"]
	if es.Up || es.Error != "no reachable node" {
		t.Errorf("elasticsearch status = %+v", es)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("redis", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if !report.Up {
		t.Error("report not up")
	}

	c.Register("redis", func(ctx context.Context) error { return errors.New("pool closed") })
	rec = httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
