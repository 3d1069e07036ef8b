package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session backend named by SESSION_STORE.
// A redis store that cannot be reached degrades to memory. The returned
// close func is never nil.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (session.Store, func() error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || !strings.EqualFold(strings.TrimSpace(cfg.SessionStore), "redis") {
		logger.Info("session store ready", "type", "memory")
		return session.NewMemoryStore(), noop
	}

	client := BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		logger.Warn("falling back to in-memory session store")
		return session.NewMemoryStore(), noop
	}
	logger.Info("session store ready", "type", "redis", "ttl_hours", cfg.SessionTTLHours)
	return session.NewRedisStore(client, cfg.SessionTTL()), client.Close
}
