package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	connectorScope       = "https://api.botframework.com/.default"
	defaultBotTenant     = "botframework.com"
	defaultConnectorWait = 15 * time.Second
	connectorErrorBody   = 1 << 10
)

// ErrInvalidServiceURL is returned for a reference whose service URL cannot be used.
var ErrInvalidServiceURL = errors.New("bot: invalid service url")

// ConnectorError reports a non-2xx answer from the Bot Connector.
type ConnectorError struct {
	StatusCode int
	Body       string
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("bot: connector returned HTTP %d: %s", e.StatusCode, e.Body)
}

// ConnectorConfig holds the bot's app registration.
type ConnectorConfig struct {
	AppID       string
	AppPassword string
	// TenantID scopes the token request. Empty means the multi-tenant bot authority.
	TenantID string
	// TokenURL overrides the authority endpoint derived from TenantID.
	TokenURL string
	Timeout  time.Duration
	// HTTPClient is the base client; the oauth2 transport wraps its transport.
	HTTPClient *http.Client
}

// Connector posts activities to the Bot Connector REST API with an app token.
type Connector struct {
	client *http.Client
	logger *logging.Logger
}

func NewConnector(cfg ConnectorConfig, logger *logging.Logger) *Connector {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultConnectorWait
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tenant := strings.TrimSpace(cfg.TenantID)
		if tenant == "" {
			tenant = defaultBotTenant
		}
		tokenURL = "https://login.microsoftonline.com/" + url.PathEscape(tenant) + "/oauth2/v2.0/token"
	}
	creds := clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     tokenURL,
		Scopes:       []string{connectorScope},
	}
	// Token fetches reuse the base client; the token is cached until expiry.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := creds.Client(tokenCtx)
	client.Timeout = timeout
	return &Connector{client: client, logger: logger}
}

// outboundActivity is the body the connector expects for a message.
type outboundActivity struct {
	Type         string             `json:"type"`
	Text         string             `json:"text,omitempty"`
	TextFormat   string             `json:"textFormat,omitempty"`
	Attachments  []teams.Attachment `json:"attachments,omitempty"`
	From         *teams.User        `json:"from,omitempty"`
	Conversation teams.Conversation `json:"conversation"`
	ReplyToID    string             `json:"replyToId,omitempty"`
}

// ReplyToActivity answers activityID inside the referenced conversation.
func (c *Connector) ReplyToActivity(ctx context.Context, ref ConversationReference, activityID string, reply teams.Reply) error {
	return c.post(ctx, ref, activityID, reply)
}

// SendToConversation starts a new message in the referenced conversation.
func (c *Connector) SendToConversation(ctx context.Context, ref ConversationReference, reply teams.Reply) error {
	return c.post(ctx, ref, "", reply)
}

func (c *Connector) post(ctx context.Context, ref ConversationReference, activityID string, reply teams.Reply) error {
	base, err := serviceBase(ref.ServiceURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ref.ConversationID) == "" {
		return errors.New("bot: conversation id is required")
	}
	endpoint := base + "/v3/conversations/" + url.PathEscape(ref.ConversationID) + "/activities"
	if activityID != "" {
		endpoint += "/" + url.PathEscape(activityID)
	}

	act := outboundActivity{
		Type:         reply.Type,
		Text:         reply.Text,
		Attachments:  reply.Attachments,
		Conversation: teams.Conversation{ID: ref.ConversationID},
		ReplyToID:    activityID,
	}
	if act.Type == "" {
		act.Type = ActivityMessage
	}
	if act.Text != "" {
		act.TextFormat = "markdown"
	}
	if ref.BotID != "" {
		act.From = &teams.User{ID: ref.BotID, Name: ref.BotName}
	}
	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("bot: marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot: send activity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, connectorErrorBody))
		return &ConnectorError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug("bot activity sent", "conversation_id", ref.ConversationID, "reply_to", activityID, "status", resp.StatusCode)
	return nil
}

func serviceBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidServiceURL, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidServiceURL, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
