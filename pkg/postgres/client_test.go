package postgres

import (
	"testing"
	"time"

	"github.com/helpfront/searchsync/pkg/config"
)

func TestPoolLimits(t *testing.T) {
	open, idle, lifetime := poolLimits(config.PostgresConfig{})
	if open != 8 || idle != 2 || lifetime != 30*time.Minute {
		t.Errorf("fallbacks = %d/%d/%v, want 8/2/30m", open, idle, lifetime)
	}

	open, idle, lifetime = poolLimits(config.PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if open != 25 || idle != 5 || lifetime != 5*time.Minute {
		t.Errorf("configured = %d/%d/%v, want 25/5/5m", open, idle, lifetime)
	}
}
