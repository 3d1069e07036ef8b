package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/teams-agent-bridge/internal/conversation"
	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	maxWebhookBody         = 1 << 20
	defaultResponseTimeout = 5 * time.Second
	readyText              = "Webhook ready"
)

var teamsTracer = otel.Tracer("teams.internal.http.teams_webhook")

// TurnProcessor turns a parsed message into reply text.
type TurnProcessor interface {
	Process(ctx context.Context, msg *teams.InboundMessage) conversation.Result
}

// TeamsWebhookConfig wires the Teams webhook handler.
type TeamsWebhookConfig struct {
	Verifier  *teams.Verifier
	Processor TurnProcessor
	Logger    *logging.Logger
	Metrics   *metrics.RelayMetrics
	// Deadline bounds processing so Teams always gets an answer.
	Deadline time.Duration
	// TimeoutText is the reply when Deadline passes; it should match the
	// processor's own timeout text.
	TimeoutText string
	DevMode     bool
}

// TeamsWebhookHandler serves the Teams outgoing webhook endpoint.
type TeamsWebhookHandler struct {
	verifier  *teams.Verifier
	processor TurnProcessor
	logger    *logging.Logger
	metrics   *metrics.RelayMetrics
	deadline    time.Duration
	timeoutText string
	devMode     bool
}

func NewTeamsWebhookHandler(cfg TeamsWebhookConfig) *TeamsWebhookHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = defaultResponseTimeout
	}
	timeoutText := cfg.TimeoutText
	if timeoutText == "" {
		timeoutText = conversation.DefaultTimeoutText
	}
	if !cfg.Verifier.IsConfigured() {
		logger.Warn("teams hmac verification disabled", "reason", "TEAMS_HMAC_SECRET not configured")
	}
	return &TeamsWebhookHandler{
		verifier:    cfg.Verifier,
		processor:   cfg.Processor,
		logger:      logger,
		metrics:     cfg.Metrics,
		deadline:    deadline,
		timeoutText: timeoutText,
		devMode:     cfg.DevMode,
	}
}

// HMACEnabled reports whether inbound signatures are enforced.
func (h *TeamsWebhookHandler) HMACEnabled() bool {
	return h.verifier.IsConfigured()
}

// Ready answers GET checks on the webhook URL.
func (h *TeamsWebhookHandler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": readyText})
}

// Handle serves POST /api/teams/webhook.
func (h *TeamsWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := teamsTracer.Start(r.Context(), "teams.webhook")
	defer span.End()
	defer func() { h.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		span.RecordError(err)
		h.metrics.ObserveInbound("invalid")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if h.verifier.IsConfigured() {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" && teams.IsValidationRequest(body) {
			h.logger.Warn("unsigned teams validation request accepted", "body_bytes", len(body))
			h.ack(w, "validation")
			return
		}
		if err := h.verifier.Verify(authHeader, body); err != nil {
			var authErr *teams.AuthError
			kind := "unknown"
			if errors.As(err, &authErr) {
				kind = authErr.Kind.String()
			}
			span.SetStatus(codes.Error, "unauthorized")
			span.SetAttributes(attribute.String("teams.auth_error", kind))
			h.logger.Warn("teams hmac verification failed", "reason", kind)
			h.metrics.ObserveInbound("unauthorized")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	if teams.IsValidationRequest(body) {
		h.ack(w, "validation")
		return
	}
	h.process(ctx, w, body)
}

// HandleTestMessage runs the same pipeline without signature checks.
// Only served when DevMode is set.
func (h *TeamsWebhookHandler) HandleTestMessage(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Only available in development"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.process(r.Context(), w, body)
}

func (h *TeamsWebhookHandler) process(ctx context.Context, w http.ResponseWriter, body []byte) {
	span := spanFromContext(ctx)
	msg, err := teams.ParseMessage(body)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("teams message parse failed", "error", err)
		h.metrics.ObserveInbound("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid message format"})
		return
	}
	span.SetAttributes(
		attribute.String("teams.message_id", msg.ID),
		attribute.String("teams.conversation_id", msg.Conversation.ID),
		attribute.Bool("teams.thread_reply", msg.IsThreadReply()),
	)
	h.logger.Info("teams webhook received",
		"message_id", msg.ID,
		"user_name", msg.From.Name,
		"conversation_id", msg.Conversation.ID,
	)

	outcome := "query"
	if msg.IsCommand() {
		outcome = "command"
	}

	result, timedOut := h.runWithDeadline(ctx, msg)
	if timedOut {
		outcome = "timeout"
		h.logger.Warn("teams reply deadline reached", "message_id", msg.ID, "deadline", h.deadline.String())
	}
	if result.IsError {
		span.SetStatus(codes.Error, "fallback reply")
	}
	h.metrics.ObserveInbound(outcome)
	writeJSON(w, http.StatusOK, teams.TextReply(result.Text))
}

// runWithDeadline abandons processing once the Teams reply window closes.
func (h *TeamsWebhookHandler) runWithDeadline(ctx context.Context, msg *teams.InboundMessage) (conversation.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.deadline)
	defer cancel()

	done := make(chan conversation.Result, 1)
	go func() {
		done <- h.processor.Process(ctx, msg)
	}()
	select {
	case res := <-done:
		return res, false
	case <-ctx.Done():
		return conversation.Result{Text: h.timeoutText, IsError: true}, true
	}
}

func (h *TeamsWebhookHandler) ack(w http.ResponseWriter, outcome string) {
	h.metrics.ObserveInbound(outcome)
	writeJSON(w, http.StatusOK, teams.TextReply(readyText))
}
