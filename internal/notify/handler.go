package notify

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const maxNotifyBody = 256 << 10

// Handler serves the notification API.
type Handler struct {
	service *Service
	apiKey  string
	logger  *logging.Logger
}

// NewHandler creates the notify API handler. An empty apiKey disables auth.
func NewHandler(service *Service, apiKey string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, apiKey: apiKey, logger: logger}
}

// Routes mounts POST /notify, POST /notify/all, GET /channels and GET /conversations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/notify", h.Notify)
		r.Post("/notify/all", h.NotifyAll)
		r.Get("/channels", h.Channels)
		r.Get("/conversations", h.Conversations)
	})
	return r
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type notifyResponse struct {
	Success        bool          `json:"success"`
	NotificationID string        `json:"notification_id,omitempty"`
	Channel        string        `json:"channel,omitempty"`
	Status         Status        `json:"status,omitempty"`
	Error          string        `json:"error,omitempty"`
	Notification   *Notification `json:"notification,omitempty"`
}

// Notify handles POST /api/v1/notify.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := decodeRequest(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, notifyResponse{Error: "invalid request body"})
		return
	}

	n, err := h.service.Notify(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, notifyResponse{Channel: req.Channel, Error: err.Error()})
	case errors.Is(err, ErrUnknownChannel):
		writeJSON(w, http.StatusNotFound, notifyResponse{Channel: req.Channel, Error: "channel not found or disabled"})
	case errors.Is(err, ErrUnknownConversation):
		writeJSON(w, http.StatusNotFound, notifyResponse{Error: "conversation not known to the bot"})
	case err != nil:
		resp := notifyResponse{Error: err.Error(), Notification: n}
		if n != nil {
			resp.NotificationID, resp.Channel, resp.Status = n.ID, n.Channel, n.Status
		}
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, notifyResponse{
			Success:        true,
			NotificationID: n.ID,
			Channel:        n.Channel,
			Status:         n.Status,
			Notification:   n,
		})
	}
}

// NotifyAll handles POST /api/v1/notify/all.
func (h *Handler) NotifyAll(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := decodeRequest(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	results := h.service.NotifyAll(r.Context(), req)
	sent := 0
	for _, n := range results {
		if n.Status == StatusSent {
			sent++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":         len(results),
		"sent":          sent,
		"notifications": results,
	})
}

// Channels handles GET /api/v1/channels.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	all := h.service.Registry().All()
	enabled := make([]string, 0, len(all))
	for _, ch := range all {
		if ch.Enabled {
			enabled = append(enabled, ch.Name)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": all, "enabled": enabled})
}

// Conversations handles GET /api/v1/conversations.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	ids := h.service.Conversations()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids, "count": len(ids)})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotifyBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
