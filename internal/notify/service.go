package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	defaultCardTitle     = "Notificación"
	broadcastParallelism = 4
)

var (
	// ErrUnknownChannel is returned when the channel is missing or disabled.
	ErrUnknownChannel = errors.New("notify: unknown channel")
	// ErrInvalidRequest is returned for an empty message or bad card settings.
	ErrInvalidRequest = errors.New("notify: invalid request")
	// ErrUnknownConversation is returned when the bot cannot reach the conversation.
	ErrUnknownConversation = errors.New("notify: unknown conversation")
)

// conversationChannel labels deliveries made through the bot instead of a webhook.
const conversationChannel = "bot"

// ConversationSender reaches conversations the bot has already seen.
type ConversationSender interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendCard(ctx context.Context, conversationID string, card map[string]any) error
	HasConversation(conversationID string) bool
	Conversations() []string
}

// Status tracks a notification through delivery.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Request describes a notification to deliver.
type Request struct {
	Channel string `json:"channel"`
	// Conversation targets a bot conversation instead of a channel webhook.
	Conversation string         `json:"conversation_id,omitempty"`
	Message      string         `json:"message"`
	Title        string         `json:"title,omitempty"`
	CardType     CardKind       `json:"card_type,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Notification is the delivery record returned to callers.
type Notification struct {
	ID           string         `json:"id"`
	Channel      string         `json:"channel"`
	Conversation string         `json:"conversation_id,omitempty"`
	Message      string         `json:"message"`
	Title        string         `json:"title,omitempty"`
	CardType     CardKind       `json:"card_type,omitempty"`
	Priority     Priority       `json:"priority"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func (n *Notification) MarkSent(at time.Time) {
	n.Status = StatusSent
	n.SentAt = &at
	n.Error = ""
}

func (n *Notification) MarkFailed(err error) {
	n.Status = StatusFailed
	if err != nil {
		n.Error = err.Error()
	}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceMetrics records outbound deliveries.
func WithServiceMetrics(m *metrics.RelayMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultChannel sets the channel used when a request names none.
func WithDefaultChannel(name string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.defaultChannel = name
		}
	}
}

// WithConversations enables delivery to bot conversations.
func WithConversations(cs ConversationSender) ServiceOption {
	return func(s *Service) { s.conversations = cs }
}

// WithClock overrides time.Now for timestamps and card stamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.cards.Now = now
		}
	}
}

// Service routes notifications to registered Teams channels.
type Service struct {
	registry       *Registry
	sender         Sender
	conversations  ConversationSender
	cards          CardBuilder
	metrics        *metrics.RelayMetrics
	logger         *logging.Logger
	now            func() time.Time
	defaultChannel string
}

// NewService creates a notification service.
func NewService(registry *Registry, sender Sender, logger *logging.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		registry:       registry,
		sender:         sender,
		logger:         logger,
		now:            time.Now,
		defaultChannel: "default",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the channel registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Notify delivers one notification. The returned Notification is non-nil
// whenever the request passed validation, including on delivery failure.
func (s *Service) Notify(ctx context.Context, req Request) (*Notification, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	priority, err := ParsePriority(req.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	t, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		ID:           uuid.NewString(),
		Channel:      t.label,
		Conversation: t.conversationID,
		Message:      req.Message,
		Title:        req.Title,
		CardType:     req.CardType,
		Priority:     priority,
		Metadata:     req.Metadata,
		Status:       StatusPending,
		CreatedAt:    s.now().UTC(),
	}

	if req.CardType != "" {
		title := req.Title
		if title == "" {
			title = defaultCardTitle
		}
		card, err := s.cards.Build(req.CardType, title, req.Message, priority, req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return s.finish(n, s.deliverCard(ctx, t, card))
	}
	return s.finish(n, s.deliverText(ctx, t, formatText(priority, req.Title, req.Message)))
}

// target is where one notification goes: a channel webhook or a bot conversation.
type target struct {
	label          string
	webhookURL     string
	conversationID string
}

func (s *Service) resolve(req Request) (target, error) {
	if conv := strings.TrimSpace(req.Conversation); conv != "" {
		if s.conversations == nil || !s.conversations.HasConversation(conv) {
			return target{}, fmt.Errorf("%w: %s", ErrUnknownConversation, conv)
		}
		return target{label: conversationChannel, conversationID: conv}, nil
	}
	name := strings.TrimSpace(req.Channel)
	if name == "" {
		name = s.defaultChannel
	}
	ch, ok := s.registry.Get(name)
	if !ok {
		return target{}, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return target{label: ch.Name, webhookURL: ch.WebhookURL}, nil
}

func (s *Service) deliverText(ctx context.Context, t target, text string) error {
	if t.conversationID != "" {
		return s.conversations.SendText(ctx, t.conversationID, text)
	}
	return s.sender.SendText(ctx, t.webhookURL, text)
}

func (s *Service) deliverCard(ctx context.Context, t target, card map[string]any) error {
	if t.conversationID != "" {
		return s.conversations.SendCard(ctx, t.conversationID, card)
	}
	return s.sender.SendCard(ctx, t.webhookURL, card)
}

// Conversations lists the bot conversations reachable for proactive sends.
func (s *Service) Conversations() []string {
	if s.conversations == nil {
		return nil
	}
	return s.conversations.Conversations()
}

// NotifyAll sends the request to every enabled channel concurrently, at most
// broadcastParallelism at a time. Per-channel failures are reported on the
// returned notifications, which keep registry order.
func (s *Service) NotifyAll(ctx context.Context, req Request) []*Notification {
	channels := s.registry.Enabled()
	results := make([]*Notification, len(channels))

	var g errgroup.Group
	g.SetLimit(broadcastParallelism)
	for i, ch := range channels {
		g.Go(func() error {
			r := req
			r.Channel = ch.Name
			r.Conversation = ""
			n, err := s.Notify(ctx, r)
			if n == nil {
				s.logger.Warn("notify: broadcast skipped channel", "channel", ch.Name, "error", err)
				return nil
			}
			results[i] = n
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Notification, 0, len(results))
	for _, n := range results {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *Service) finish(n *Notification, err error) (*Notification, error) {
	if err != nil {
		n.MarkFailed(err)
		s.metrics.ObserveOutbound(n.Channel, string(StatusFailed))
		s.logger.Error("notify: delivery failed", "id", n.ID, "channel", n.Channel, "error", err)
		return n, err
	}
	n.MarkSent(s.now().UTC())
	s.metrics.ObserveOutbound(n.Channel, string(StatusSent))
	s.logger.Info("notify: delivered", "id", n.ID, "channel", n.Channel)
	return n, nil
}

func formatText(priority Priority, title, message string) string {
	if title != "" {
		return fmt.Sprintf("%s **%s**\n\n%s", priority.Icon(), title, message)
	}
	return fmt.Sprintf("%s %s", priority.Icon(), message)
}
