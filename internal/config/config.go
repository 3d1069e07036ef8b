package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	Version  string
	LogLevel string

	// Backend agent
	AgentAPIURL       string
	AgentAPIKey       string
	AgentAPIPrefix    string
	AgentTimeout      time.Duration
	AgentMaxRetries   int
	AgentRetryBackoff time.Duration

	// Teams inbound
	TeamsHMACSecret       string
	TeamsResponseDeadline time.Duration
	// ReplyTimeoutText is sent when the agent or the reply window runs out.
	ReplyTimeoutText string

	// Session persistence
	SessionStore    string
	SessionTTLHours int
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool

	// Outbound notifications
	NotifierAPIKey    string
	WebhookAlerts     string
	WebhookReports    string
	WebhookGeneral    string
	WebhookDefault    string
	SenderTimeout     time.Duration
	SenderMaxRetries  int
	SenderRetryDelay  time.Duration
	NotifyDefaultName string
	// NotifyChannelsFile is an optional YAML file with extra channels.
	NotifyChannelsFile string

	// Bot Framework endpoint, enabled when both app credentials are set
	BotAppID       string
	BotAppPassword string
	BotTenantID    string
	BotKeysURL     string
	BotWelcomeText string

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		Version:  getEnv("APP_VERSION", "0.1.0"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AgentAPIURL:       getEnv("AGENT_API_URL", "http://localhost:8000"),
		AgentAPIKey:       getEnv("AGENT_API_KEY", ""),
		AgentAPIPrefix:    getEnv("AGENT_API_PREFIX", "/api/v1"),
		AgentTimeout:      getEnvAsDuration("AGENT_TIMEOUT", 4500*time.Millisecond),
		AgentMaxRetries:   getEnvAsInt("AGENT_MAX_RETRIES", 1),
		AgentRetryBackoff: getEnvAsDuration("AGENT_RETRY_BACKOFF", time.Second),

		TeamsHMACSecret:       getEnv("TEAMS_HMAC_SECRET", ""),
		TeamsResponseDeadline: getEnvAsDuration("TEAMS_RESPONSE_DEADLINE", 5*time.Second),
		ReplyTimeoutText:      getEnv("REPLY_TIMEOUT_TEXT", ""),

		SessionStore:    strings.ToLower(getEnv("SESSION_STORE", "memory")),
		SessionTTLHours: getEnvAsInt("SESSION_TTL_HOURS", 24),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),

		NotifierAPIKey:     getEnv("NOTIFIER_API_KEY", ""),
		WebhookAlerts:      getEnv("WEBHOOK_ALERTS", ""),
		WebhookReports:     getEnv("WEBHOOK_REPORTS", ""),
		WebhookGeneral:     getEnv("WEBHOOK_GENERAL", ""),
		WebhookDefault:     getEnv("WEBHOOK_DEFAULT", ""),
		SenderTimeout:      getEnvAsDuration("SENDER_TIMEOUT", 30*time.Second),
		SenderMaxRetries:   getEnvAsInt("SENDER_MAX_RETRIES", 3),
		SenderRetryDelay:   getEnvAsDuration("SENDER_RETRY_DELAY", time.Second),
		NotifyDefaultName:  getEnv("NOTIFY_DEFAULT_CHANNEL", "default"),
		NotifyChannelsFile: getEnv("NOTIFY_CHANNELS_FILE", ""),

		BotAppID:       getEnv("BOT_APP_ID", ""),
		BotAppPassword: getEnv("BOT_APP_PASSWORD", ""),
		BotTenantID:    getEnv("BOT_TENANT_ID", ""),
		BotKeysURL:     getEnv("BOT_OPENID_KEYS_URL", ""),
		BotWelcomeText: getEnv("BOT_WELCOME_TEXT", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// SessionTTL returns the durable session lifetime.
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// BotEnabled reports whether the Bot Framework endpoint should be served.
func (c *Config) BotEnabled() bool {
	return strings.TrimSpace(c.BotAppID) != "" && strings.TrimSpace(c.BotAppPassword) != ""
}

// DevMode reports whether development-only endpoints may be exposed.
func (c *Config) DevMode() bool {
	switch strings.ToLower(c.Env) {
	case "development", "local", "test":
		return true
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	// Bare numbers are seconds, e.g. AGENT_TIMEOUT=4.5.
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
