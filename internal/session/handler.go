package session

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// Handler exposes session inventory for operators.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates the admin session handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes mounts the session admin endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Delete("/", h.ClearAll)
	r.Get("/stats", h.Stats)
	r.Delete("/{userID}/{scope}", h.Delete)
	return r
}

// Stats handles GET /admin/sessions/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats(r.Context()))
}

// List handles GET /admin/sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("session list failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// ClearAll handles DELETE /admin/sessions.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearAll(r.Context())
	if err != nil {
		h.logger.Error("session clear failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session store unavailable"})
		return
	}
	h.logger.Info("sessions cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// Delete handles DELETE /admin/sessions/{userID}/{scope}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err1 := url.PathUnescape(chi.URLParam(r, "userID"))
	scope, err2 := url.PathUnescape(chi.URLParam(r, "scope"))
	if err1 != nil || err2 != nil || userID == "" || scope == "" {
		http.Error(w, "invalid session key", http.StatusBadRequest)
		return
	}
	deleted, err := h.store.Delete(r.Context(), userID, scope)
	if err != nil {
		h.logger.Error("session delete failed", "error", err, "user_id", userID)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session store unavailable"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]any{"deleted": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
