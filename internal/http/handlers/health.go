package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/teams-agent-bridge/internal/agent"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
)

const healthCheckTimeout = 3 * time.Second

// AgentHealthChecker reports the backend agent's health.
type AgentHealthChecker interface {
	HealthCheck(ctx context.Context) (*agent.HealthInfo, error)
}

// HealthConfig wires the health endpoint.
type HealthConfig struct {
	Version     string
	Environment string
	AgentURL    string
	Agent       AgentHealthChecker
	Sessions    session.Store
	HMACEnabled bool
}

// HealthHandler serves GET /health with the agent's status embedded.
type HealthHandler struct {
	cfg HealthConfig
}

func NewHealthHandler(cfg HealthConfig) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

type agentHealth struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Environment string         `json:"environment"`
	HMACEnabled bool           `json:"hmac_enabled"`
	Agent       agentHealth    `json:"agent"`
	Sessions    *session.Stats `json:"sessions,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:      "healthy",
		Version:     h.cfg.Version,
		Environment: h.cfg.Environment,
		HMACEnabled: h.cfg.HMACEnabled,
		Agent:       agentHealth{URL: h.cfg.AgentURL, Status: "unknown", Version: "unknown"},
	}
	if h.cfg.Agent != nil {
		info, err := h.cfg.Agent.HealthCheck(ctx)
		if err != nil {
			resp.Status = "degraded"
			resp.Agent.Status = "unavailable"
			resp.Agent.Error = err.Error()
		} else {
			resp.Agent.Status = info.Status
			resp.Agent.Version = info.Version
		}
	}
	if h.cfg.Sessions != nil {
		stats := h.cfg.Sessions.Stats(ctx)
		if stats.Connected != nil && !*stats.Connected {
			resp.Status = "degraded"
		}
		resp.Sessions = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}
