package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 4500 * time.Millisecond
	defaultBackoff    = time.Second
	defaultUserAgent  = "teams-agent-bridge/0.1"
	maxMessageLength  = 5000
	maxErrorBodyBytes = 4096
)

// Config controls how the agent client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	APIPrefix  string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the unit for rate-limit waits: Backoff * 2^attempt.
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client talks to the backend conversational agent.
type Client struct {
	baseURL    string
	apiKey     string
	apiPrefix  string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	tracer     trace.Tracer
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent: base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("agent: invalid base URL: %w", err)
	}
	prefix := strings.TrimSpace(cfg.APIPrefix)
	if prefix == "" {
		prefix = defaultAPIPrefix
	}
	if prefix == "/" {
		prefix = ""
	}
	prefix = strings.TrimRight(prefix, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiPrefix:  prefix,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    backoff,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
		tracer:     otel.Tracer("teams.internal.agent"),
	}, nil
}

// BaseURL returns the configured agent endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthCheck calls GET /health. It is not retried.
func (c *Client) HealthCheck(ctx context.Context) (*HealthInfo, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Detail: "health check failed: " + errorDetail(data)}
	}
	var details map[string]any
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Detail: "decode health response", Err: err}
	}
	info := &HealthInfo{Status: "unknown", Version: "unknown", Details: details}
	if s, ok := details["status"].(string); ok && s != "" {
		info.Status = s
	}
	if v, ok := details["version"].(string); ok && v != "" {
		info.Version = v
	}
	return info, nil
}

// Chat sends one user turn. Rate limits and timeouts are retried up to
// MaxRetries times; everything else fails on the first attempt.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &Error{Kind: KindValidation, StatusCode: http.StatusUnprocessableEntity, Detail: "message is required"}
	}
	if len([]rune(req.Message)) > maxMessageLength {
		return nil, &Error{Kind: KindValidation, StatusCode: http.StatusUnprocessableEntity, Detail: fmt.Sprintf("message exceeds %d characters", maxMessageLength)}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Detail: "marshal chat request", Err: err}
	}

	ctx, span := c.tracer.Start(ctx, "agent.chat")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("agent.has_session", req.SessionID != ""),
		attribute.Int("agent.max_retries", c.maxRetries),
	)

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		span.SetAttributes(attribute.Int("agent.attempts", attempt+1))
		status, data, err := c.do(ctx, http.MethodPost, c.apiPrefix+"/chat", body)
		if err != nil {
			var agentErr *Error
			errors.As(err, &agentErr)
			lastErr = agentErr
			if agentErr.Kind == KindTimeout && attempt < c.maxRetries && ctx.Err() == nil {
				c.logRetry("chat", attempt, 0, err)
				continue
			}
			break
		}

		switch {
		case status == http.StatusOK:
			var reply ChatReply
			if err := json.Unmarshal(data, &reply); err != nil {
				lastErr = &Error{Kind: KindAPI, StatusCode: status, Detail: "decode chat response", Err: err}
				break
			}
			c.logger.Info("agent chat reply",
				"session_id", reply.SessionID,
				"intent", reply.Intent,
				"agents", len(reply.AgentsExecuted),
				"attempt", attempt+1,
			)
			return &reply, nil
		case status == http.StatusUnprocessableEntity:
			lastErr = &Error{Kind: KindValidation, StatusCode: status, Detail: errorDetail(data)}
		case status == http.StatusTooManyRequests:
			lastErr = &Error{Kind: KindAPI, StatusCode: status, Detail: "rate limited"}
			if attempt < c.maxRetries {
				c.logRetry("chat", attempt, status, lastErr)
				if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
					lastErr = classifyTransportError(sleepErr)
					break
				}
				continue
			}
		default:
			lastErr = &Error{Kind: KindAPI, StatusCode: status, Detail: errorDetail(data)}
		}
		break
	}
	if lastErr == nil {
		lastErr = &Error{Kind: KindAPI, StatusCode: http.StatusInternalServerError, Detail: "request failed without response"}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Kind.String())
	c.logger.Warn("agent chat failed", "kind", lastErr.Kind.String(), "status", lastErr.StatusCode, "error", lastErr)
	return nil, lastErr
}

// GetSession fetches the agent's record for a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &Error{Kind: KindValidation, Detail: "session id is required"}
	}
	status, data, err := c.do(ctx, http.MethodGet, c.apiPrefix+"/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Detail: "session not found: " + sessionID}
	}
	if status < 200 || status > 299 {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Detail: errorDetail(data)}
	}
	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Detail: "decode session response", Err: err}
	}
	return &info, nil
}

// DeleteSession removes a session on the agent side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, &Error{Kind: KindValidation, Detail: "session id is required"}
	}
	status, data, err := c.do(ctx, http.MethodDelete, c.apiPrefix+"/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return false, err
	}
	if status < 200 || status > 299 {
		return false, &Error{Kind: KindAPI, StatusCode: status, Detail: errorDetail(data)}
	}
	c.logger.Info("agent session deleted", "session_id", sessionID)
	return true, nil
}

// do performs a single request. Transport failures come back as *Error.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, &Error{Kind: KindConnection, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, classifyTransportError(err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(op string, attempt int, status int, err error) {
	c.logger.Warn("agent retry",
		"op", op,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

// classifyTransportError maps client-side failures onto the timeout and
// connection kinds. Only timeouts are worth retrying.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Detail: "deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Detail: netErr.Error(), Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}

// errorDetail pulls the "detail" field out of a FastAPI-style error body.
func errorDetail(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	if len(data) > maxErrorBodyBytes {
		data = data[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(data))
}
