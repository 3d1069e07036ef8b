package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:    baseURL,
		APIKey:     "agent-key",
		Timeout:    time.Second,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestChatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer agent-key", r.Header.Get("Authorization"))
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hola", req.Message)
		assert.Equal(t, "sess-1", req.SessionID)
		assert.Equal(t, "aad1", req.UserID)
		_, _ = w.Write([]byte(`{"session_id":"sess-2","message":"respuesta","intent":"policy","confidence":0.9,"agents_executed":[{"agent_name":"router","display_name":"Router","status":"completed"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	reply, err := client.Chat(context.Background(), ChatRequest{Message: "hola", SessionID: "sess-1", UserID: "aad1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-2", reply.SessionID)
	assert.Equal(t, "respuesta", reply.Message)
	assert.Equal(t, "policy", reply.Intent)
	require.NotNil(t, reply.Confidence)
	assert.InDelta(t, 0.9, *reply.Confidence, 0.0001)
	assert.Len(t, reply.AgentsExecuted, 1)
}

func TestChatOmitsEmptyOptionalFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasSession := raw["session_id"]
		assert.False(t, hasSession)
		_, _ = w.Write([]byte(`{"session_id":"s","message":"ok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
}

func TestChatValidationErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"message too long"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.MaxRetries = 3 })
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "message too long", agentErr.Detail)
}

func TestChatRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"s","message":"ok"}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv.URL, nil).Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestChatRateLimitExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.MaxRetries = 2 })
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindAPI, agentErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, agentErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatRetriesTimeoutThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) {
		c.Timeout = 30 * time.Millisecond
		c.MaxRetries = 2
	})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatCallerDeadlineStopsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.MaxRetries = 5 })
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, ChatRequest{Message: "hi"})
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestChatConnectionRefusedIsNotRetried(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	})
	client := newTestClient(t, "http://agent.invalid", func(c *Config) {
		c.MaxRetries = 3
		c.HTTPClient = &http.Client{Transport: transport}
	})

	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.MaxRetries = 3 })
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindAPI, agentErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, agentErr.StatusCode)
	assert.Equal(t, "boom", agentErr.Detail)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatRejectsEmptyMessageLocally(t *testing.T) {
	client := newTestClient(t, "http://agent.invalid", nil)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "   "})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy","version":"2.2.0","database":"ok"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL, nil).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", info.Status)
	assert.Equal(t, "2.2.0", info.Version)
	assert.Equal(t, "ok", info.Details["database"])
}

func TestHealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).HealthCheck(context.Background())
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, http.StatusServiceUnavailable, agentErr.StatusCode)
}

func TestGetAndDeleteSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sessions/known":
			_, _ = w.Write([]byte(`{"session_id":"known","status":"active","created_at":"2025-01-01T00:00:00Z","last_activity":"2025-01-01T00:05:00Z","message_count":4,"messages":[{"role":"user","content":"hi"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/sessions/known":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL, nil)
	ctx := context.Background()

	info, err := client.GetSession(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, 4, info.MessageCount)
	assert.Equal(t, "active", info.Status)
	require.Len(t, info.Messages, 1)

	_, err = client.GetSession(ctx, "missing")
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, http.StatusNotFound, agentErr.StatusCode)

	ok, err := client.DeleteSession(ctx, "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.DeleteSession(ctx, "missing")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCustomAPIPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		_, _ = w.Write([]byte(`{"session_id":"s","message":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.APIPrefix = "/" })
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
}
