package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubChecker implements HealthChecker with a fixed result.
type stubChecker struct {
	err error
}

func (c *stubChecker) HealthCheck(ctx context.Context) error {
	return c.err
}

// TestHealth tests the liveness probe.
func TestHealth(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handlers.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["runtime"] != "ok" {
		t.Errorf("runtime check = %q, want ok", resp.Checks["runtime"])
	}
}

// TestReady tests the readiness probe with all dependencies healthy.
func TestReady(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker:      &stubChecker{},
		RedisChecker:   &stubChecker{},
		MetricsEnabled: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	for _, check := range []string{"database", "redis", "metrics"} {
		if resp.Checks[check] != "ok" {
			t.Errorf("check %s = %q, want ok", check, resp.Checks[check])
		}
	}
}

// TestReady_DatabaseDown tests that a database failure makes readiness fail.
func TestReady_DatabaseDown(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker: &stubChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["database"] != "error" {
		t.Errorf("database check = %q, want error", resp.Checks["database"])
	}
}

// TestReady_RedisDown tests that a Redis outage degrades but does not fail
// readiness, since rate limiting fails open.
func TestReady_RedisDown(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker:    &stubChecker{},
		RedisChecker: &stubChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Checks["redis"] != "error" {
		t.Errorf("redis check = %q, want error", resp.Checks["redis"])
	}
}

// TestHealth_MethodNotAllowed tests that only GET is accepted on both probes.
func TestHealth_MethodNotAllowed(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	handlers.Health(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("health: expected status 405, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/ready", nil)
	w = httptest.NewRecorder()
	handlers.Ready(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("ready: expected status 405, got %d", w.Code)
	}
}
