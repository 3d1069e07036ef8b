package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true); client != nil {
		t.Fatalf("expected nil client without address")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, true); client != nil {
		t.Fatalf("expected nil client without config")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionStoreMemoryByDefault(t *testing.T) {
	store, closeFn := BuildSessionStore(context.Background(), &appconfig.Config{SessionStore: "memory"}, logging.New("error"))
	defer closeFn()
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestBuildSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{SessionStore: "redis", RedisAddr: mr.Addr(), SessionTTLHours: 2}

	store, closeFn := BuildSessionStore(context.Background(), cfg, logging.New("error"))
	defer closeFn()
	if _, ok := store.(*session.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}

	if err := store.Set(context.Background(), "u1", "c1", "sess-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %s", ttl)
	}
}

func TestBuildSessionStoreFallsBackWhenRedisDown(t *testing.T) {
	cfg := &appconfig.Config{SessionStore: "redis", RedisAddr: "127.0.0.1:1"}
	store, closeFn := BuildSessionStore(context.Background(), cfg, logging.New("error"))
	defer closeFn()
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected memory fallback, got %T", store)
	}
}
