package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultRetryDelay  = time.Second
	defaultMaxRetries  = 3
	maxRetryAfter      = time.Minute
	errorBodyLimit     = 512
)

// Sender delivers payloads to a Teams incoming webhook URL.
type Sender interface {
	SendText(ctx context.Context, webhookURL, text string) error
	SendCard(ctx context.Context, webhookURL string, card map[string]any) error
}

// DeliveryFailure is returned once a payload could not be delivered.
type DeliveryFailure struct {
	Attempts   int
	StatusCode int
	LastError  error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("notify: delivery failed after %d attempt(s): %v", e.Attempts, e.LastError)
}

func (e *DeliveryFailure) Unwrap() error {
	return e.LastError
}

// WebhookSenderConfig controls retry behavior.
type WebhookSenderConfig struct {
	Timeout time.Duration
	// MaxRetries counts retries after the first attempt. Negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// WebhookSender posts JSON to Teams incoming webhooks with retry and backoff.
type WebhookSender struct {
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewWebhookSender(cfg WebhookSenderConfig) *WebhookSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
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
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookSender{
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryDelay: delay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// SendText posts {"text": ...}.
func (s *WebhookSender) SendText(ctx context.Context, webhookURL, text string) error {
	return s.post(ctx, webhookURL, map[string]string{"text": text})
}

// SendCard posts a message envelope carrying one Adaptive Card.
func (s *WebhookSender) SendCard(ctx context.Context, webhookURL string, card map[string]any) error {
	return s.post(ctx, webhookURL, teams.CardReply(card))
}

// post retries 429, 5xx, timeouts and network errors. Other 4xx fail at once.
func (s *WebhookSender) post(ctx context.Context, webhookURL string, payload any) error {
	if strings.TrimSpace(webhookURL) == "" {
		return &DeliveryFailure{LastError: errors.New("webhook url is required")}
	}
	if err := checkWebhookURL(webhookURL); err != nil {
		return &DeliveryFailure{LastError: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryFailure{LastError: fmt.Errorf("marshal payload: %w", err)}
	}

	delay := s.retryDelay
	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts = attempt + 1
		status, respBody, retryAfter, err := s.do(ctx, webhookURL, body)
		lastStatus = status
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return &DeliveryFailure{Attempts: attempts, LastError: ctx.Err()}
			}
			if errors.Is(err, errBuildRequest) {
				return &DeliveryFailure{Attempts: attempts, LastError: err}
			}
			lastErr = err
			wait = delay
			delay *= 2
			s.logger.Warn("teams webhook transport error", "attempt", attempts, "error", err)
		case status >= 200 && status < 300:
			s.logger.Info("teams message sent", "attempt", attempts, "status", status, "url_preview", urlPreview(webhookURL))
			return nil
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP %d: rate limited", status)
			wait = retryAfter
			if wait <= 0 {
				wait = delay * 2
			}
			s.logger.Warn("teams webhook rate limited", "attempt", attempts, "retry_after", wait.String())
		case status >= 400 && status < 500:
			lastErr = fmt.Errorf("HTTP %d: %s", status, respBody)
			s.logger.Error("teams webhook client error", "status", status, "response", respBody)
			return &DeliveryFailure{Attempts: attempts, StatusCode: status, LastError: lastErr}
		default:
			lastErr = fmt.Errorf("HTTP %d: %s", status, respBody)
			wait = delay
			delay *= 2
			s.logger.Warn("teams webhook server error", "attempt", attempts, "status", status)
		}
		if attempt == s.maxRetries {
			break
		}
		if err := s.sleep(ctx, wait); err != nil {
			return &DeliveryFailure{Attempts: attempts, StatusCode: lastStatus, LastError: err}
		}
	}
	return &DeliveryFailure{Attempts: attempts, StatusCode: lastStatus, LastError: lastErr}
}

func (s *WebhookSender) do(ctx context.Context, webhookURL string, body []byte) (int, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, fmt.Errorf("%w: %v", errBuildRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return resp.StatusCode, strings.TrimSpace(string(respBody)), parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

var errBuildRequest = errors.New("build request")

// checkWebhookURL rejects URLs no retry could ever deliver to.
func checkWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errBuildRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", errBuildRequest, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", errBuildRequest)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date, capped at one minute.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = time.Until(at)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func urlPreview(u string) string {
	if len(u) > 50 {
		return u[:50]
	}
	return u
}
