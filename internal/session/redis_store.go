package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultKeyPrefix = "teams:session"
	defaultTTL       = 24 * time.Hour
	scanBatch        = 200
)

// RedisStore persists sessions as JSON values under prefix:user:scope with a TTL
// that is refreshed on every read and write.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the "teams:session" namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix = strings.TrimRight(strings.TrimSpace(prefix), ":"); prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore wraps an existing client. A non-positive ttl uses 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
		tracer: otel.Tracer("teams.internal.session.redis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(userID, scope string) string {
	return s.prefix + ":" + userID + ":" + scope
}

func (s *RedisStore) Get(ctx context.Context, userID, scope string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.get")
	defer span.End()
	span.SetAttributes(attribute.String("session.user_id", userID))

	key := s.key(userID, scope)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, &StoreError{Op: "get", Err: err}
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, &StoreError{Op: "get", Err: fmt.Errorf("unmarshal: %w", err)}
	}
	sess.LastActivity = s.now()
	sess.MessageCount++
	if err := s.write(ctx, key, sess); err != nil {
		span.RecordError(err)
		return nil, &StoreError{Op: "get", Err: err}
	}
	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, scope, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "session.redis.set")
	defer span.End()

	sess := newSession(userID, scope, sessionID, s.now())
	if err := s.write(ctx, s.key(userID, scope), sess); err != nil {
		span.RecordError(err)
		return &StoreError{Op: "set", Err: err}
	}
	return nil
}

func (s *RedisStore) write(ctx context.Context, key string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.client.SetEx(ctx, key, data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, userID, scope string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.delete")
	defer span.End()

	n, err := s.client.Del(ctx, s.key(userID, scope)).Result()
	if err != nil {
		span.RecordError(err)
		return false, &StoreError{Op: "delete", Err: err}
	}
	return n > 0, nil
}

// ListAll loads every session in the namespace, newest activity first.
func (s *RedisStore) ListAll(ctx context.Context) ([]Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.list")
	defer span.End()

	keys, err := s.scanKeys(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, &StoreError{Op: "list", Err: err}
	}
	out := make([]Session, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, &StoreError{Op: "list", Err: err}
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	sortByActivity(out)
	return out, nil
}

func (s *RedisStore) ClearAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.clear")
	defer span.End()

	keys, err := s.scanKeys(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, &StoreError{Op: "clear", Err: err}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return 0, &StoreError{Op: "clear", Err: err}
	}
	return int(n), nil
}

func (s *RedisStore) Stats(ctx context.Context) Stats {
	stats := Stats{Type: "redis", TTLHours: int(s.ttl / time.Hour)}
	connected := true
	if err := s.client.Ping(ctx).Err(); err != nil {
		connected = false
		stats.Connected = &connected
		stats.Error = err.Error()
		return stats
	}
	stats.Connected = &connected
	keys, err := s.scanKeys(ctx)
	if err != nil {
		stats.Error = err.Error()
		return stats
	}
	stats.ActiveSessions = len(keys)
	return stats
}

func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := s.prefix + ":*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
