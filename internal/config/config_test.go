package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "AGENT_TIMEOUT", "AGENT_MAX_RETRIES", "SESSION_STORE", "SESSION_TTL_HOURS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.AgentTimeout != 4500*time.Millisecond {
		t.Fatalf("expected 4.5s agent timeout, got %s", cfg.AgentTimeout)
	}
	if cfg.AgentMaxRetries != 1 {
		t.Fatalf("expected 1 retry, got %d", cfg.AgentMaxRetries)
	}
	if cfg.SessionStore != "memory" {
		t.Fatalf("expected memory session store, got %s", cfg.SessionStore)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %s", cfg.SessionTTL())
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.DevMode() {
		t.Fatalf("expected development to enable dev mode")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("AGENT_API_URL", "http://agent:8000")
	t.Setenv("AGENT_TIMEOUT", "3s")
	t.Setenv("AGENT_MAX_RETRIES", "2")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("SESSION_TTL_HOURS", "6")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DevMode() {
		t.Fatalf("production must not enable dev mode")
	}
	if cfg.AgentAPIURL != "http://agent:8000" {
		t.Fatalf("expected agent url override, got %s", cfg.AgentAPIURL)
	}
	if cfg.AgentTimeout != 3*time.Second || cfg.AgentMaxRetries != 2 {
		t.Fatalf("unexpected agent overrides: %s %d", cfg.AgentTimeout, cfg.AgentMaxRetries)
	}
	if cfg.SessionStore != "redis" {
		t.Fatalf("expected lower-cased store kind, got %s", cfg.SessionStore)
	}
	if cfg.SessionTTL() != 6*time.Hour {
		t.Fatalf("expected 6h ttl, got %s", cfg.SessionTTL())
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT", "soon")
	t.Setenv("AGENT_MAX_RETRIES", "many")
	cfg := Load()
	if cfg.AgentTimeout != 4500*time.Millisecond {
		t.Fatalf("expected default timeout, got %s", cfg.AgentTimeout)
	}
	if cfg.AgentMaxRetries != 1 {
		t.Fatalf("expected default retries, got %d", cfg.AgentMaxRetries)
	}
}

func TestDevModeEnvironments(t *testing.T) {
	for env, want := range map[string]bool{"local": true, "TEST": true, "staging": false} {
		cfg := &Config{Env: env}
		if cfg.DevMode() != want {
			t.Fatalf("env %s: expected dev mode %v", env, want)
		}
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT", "4.5")
	t.Setenv("SENDER_TIMEOUT", "30")
	t.Setenv("AGENT_RETRY_BACKOFF", "-2")
	cfg := Load()
	if cfg.AgentTimeout != 4500*time.Millisecond {
		t.Fatalf("expected 4.5s from bare seconds, got %s", cfg.AgentTimeout)
	}
	if cfg.SenderTimeout != 30*time.Second {
		t.Fatalf("expected 30s sender timeout, got %s", cfg.SenderTimeout)
	}
	if cfg.AgentRetryBackoff != time.Second {
		t.Fatalf("negative seconds must fall back, got %s", cfg.AgentRetryBackoff)
	}
}

func TestBotEnabledNeedsBothCredentials(t *testing.T) {
	if (&Config{BotAppID: "app"}).BotEnabled() {
		t.Fatalf("app id alone must not enable the bot")
	}
	t.Setenv("BOT_APP_ID", "app")
	t.Setenv("BOT_APP_PASSWORD", "pw")
	t.Setenv("REPLY_TIMEOUT_TEXT", "still thinking")
	cfg := Load()
	if !cfg.BotEnabled() {
		t.Fatalf("expected bot to be enabled")
	}
	if cfg.ReplyTimeoutText != "still thinking" {
		t.Fatalf("expected reply timeout text override, got %q", cfg.ReplyTimeoutText)
	}
}
