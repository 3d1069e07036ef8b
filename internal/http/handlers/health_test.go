package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/teams-agent-bridge/internal/agent"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
)

type stubHealth struct {
	info *agent.HealthInfo
	err  error
}

func (s stubHealth) HealthCheck(context.Context) (*agent.HealthInfo, error) {
	return s.info, s.err
}

func TestHealthHandlerHealthy(t *testing.T) {
	h := NewHealthHandler(HealthConfig{
		Version:     "1.0.0",
		Environment: "test",
		AgentURL:    "http://agent:8000",
		Agent:       stubHealth{info: &agent.HealthInfo{Status: "healthy", Version: "2.2.0"}},
		Sessions:    session.NewMemoryStore(),
		HMACEnabled: true,
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Agent.Status != "healthy" || body.Agent.Version != "2.2.0" {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if !body.HMACEnabled {
		t.Fatalf("expected hmac_enabled true")
	}
	if body.Sessions == nil || body.Sessions.Type != "memory" {
		t.Fatalf("expected memory session stats, got %+v", body.Sessions)
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	h := NewHealthHandler(HealthConfig{Agent: stubHealth{err: errors.New("connection refused")}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Agent.Status != "unavailable" || body.Agent.Error == "" {
		t.Fatalf("unexpected degraded body: %+v", body)
	}
}
