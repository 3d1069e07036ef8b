package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/teams-agent-bridge/internal/conversation"
	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	maxActivityBody = 1 << 20

	DefaultWelcomeText = "Hello! I'm your AI assistant. Ask me anything or type /help for available commands."
	// Bot turns carry the bot mention already stripped, so the prompt differs from the webhook's.
	emptyText = "I didn't catch that. Please ask a question."
)

var botTracer = otel.Tracer("teams.internal.bot")

// TurnProcessor turns a parsed message into reply text.
type TurnProcessor interface {
	Process(ctx context.Context, msg *teams.InboundMessage) conversation.Result
}

// Replier delivers activities through the Bot Connector.
type Replier interface {
	ReplyToActivity(ctx context.Context, ref ConversationReference, activityID string, reply teams.Reply) error
	SendToConversation(ctx context.Context, ref ConversationReference, reply teams.Reply) error
}

// Authenticator checks the connector's bearer token on each activity.
type Authenticator interface {
	Validate(ctx context.Context, authHeader, serviceURL string) error
}

type HandlerConfig struct {
	Processor  TurnProcessor
	Replier    Replier
	References *References
	// Auth may be nil only in development; every activity is then trusted.
	Auth        Authenticator
	Logger      *logging.Logger
	Metrics     *metrics.RelayMetrics
	WelcomeText string
}

// Handler serves POST /api/messages.
type Handler struct {
	processor   TurnProcessor
	replier     Replier
	refs        *References
	auth        Authenticator
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
	welcomeText string
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	refs := cfg.References
	if refs == nil {
		refs = NewReferences()
	}
	welcome := cfg.WelcomeText
	if welcome == "" {
		welcome = DefaultWelcomeText
	}
	if cfg.Auth == nil {
		logger.Warn("bot token validation disabled", "reason", "no authenticator configured")
	}
	return &Handler{
		processor:   cfg.Processor,
		replier:     cfg.Replier,
		refs:        refs,
		auth:        cfg.Auth,
		logger:      logger,
		metrics:     cfg.Metrics,
		welcomeText: welcome,
	}
}

// References exposes the conversation references collected so far.
func (h *Handler) References() *References {
	return h.refs
}

// Messages handles one activity. Replies go out through the connector, so a
// successful turn answers 200 with an empty body.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := botTracer.Start(r.Context(), "bot.activity")
	defer span.End()
	defer func() { h.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivityBody))
	if err != nil {
		h.metrics.ObserveInbound("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid activity"})
		return
	}
	act, err := ParseActivity(body)
	if err != nil {
		h.logger.Error("bot activity parse failed", "error", err)
		h.metrics.ObserveInbound("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid activity"})
		return
	}
	span.SetAttributes(
		attribute.String("bot.activity_type", act.Type),
		attribute.String("bot.conversation_id", act.Conversation.ID),
	)

	if h.auth != nil {
		if err := h.auth.Validate(ctx, r.Header.Get("Authorization"), act.ServiceURL); err != nil {
			span.RecordError(err)
			h.logger.Warn("bot token rejected", "error", err)
			h.metrics.ObserveInbound("unauthorized")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
	}

	log := h.logger.With("activity_id", act.ID, "activity_type", act.Type, "channel_id", act.ChannelID)
	log.Info("bot activity received")
	h.refs.Remember(act)

	switch act.Type {
	case ActivityMessage:
		err = h.onMessage(ctx, act, body)
	case ActivityConversationUpdate:
		err = h.onConversationUpdate(ctx, act)
	default:
		// Invoke and other activity types are acknowledged and dropped.
		h.metrics.ObserveInbound("ignored")
		log.Debug("bot activity ignored", "name", act.Name)
	}

	var parseErr *teams.ParseError
	switch {
	case errors.As(err, &parseErr):
		h.metrics.ObserveInbound("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid activity"})
	case err != nil:
		span.RecordError(err)
		log.Error("bot activity processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Processing failed"})
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) onMessage(ctx context.Context, act *Activity, body []byte) error {
	msg, err := teams.ParseMessage(body)
	if err != nil {
		return err
	}
	ref, ok := act.Reference(time.Now().UTC())
	if !ok {
		return &teams.ParseError{Field: "serviceUrl", Reason: "is required"}
	}

	outcome := "bot_query"
	var result conversation.Result
	switch {
	case msg.CleanText() == "":
		result = conversation.Result{Text: emptyText}
	default:
		if msg.IsCommand() {
			outcome = "bot_command"
		}
		result = h.processor.Process(ctx, msg)
	}
	h.metrics.ObserveInbound(outcome)
	h.logger.Info("bot reply ready",
		"message_id", msg.ID,
		"conversation_id", msg.Conversation.ID,
		"reply_to_id", msg.ThreadRootID,
		"is_error", result.IsError,
	)
	return h.replier.ReplyToActivity(ctx, ref, act.ID, teams.TextReply(result.Text))
}

func (h *Handler) onConversationUpdate(ctx context.Context, act *Activity) error {
	h.metrics.ObserveInbound("bot_update")
	if !act.BotAdded() {
		return nil
	}
	ref, ok := act.Reference(time.Now().UTC())
	if !ok {
		return &teams.ParseError{Field: "serviceUrl", Reason: "is required"}
	}
	h.logger.Info("bot added to conversation", "conversation_id", ref.ConversationID)
	return h.replier.SendToConversation(ctx, ref, teams.TextReply(h.welcomeText))
}

// Health answers GET /api/messages/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"bot_framework":   true,
		"auth_enabled":    h.auth != nil,
		"conversations":   h.refs.Len(),
		"replier_enabled": h.replier != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
