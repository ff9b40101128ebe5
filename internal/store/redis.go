package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStoreConfig configures the Redis-backed store.
type RedisStoreConfig struct {
	Namespace string
}

// RedisStore keeps entries in Redis so every replica shares them.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "timetrack"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client is not configured")
	}
	return s.client.Ping(ctx).Err()
}

// Get returns the entry stored under key, if any.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("redis client is not configured")
	}
	ctx, span := startSpan(ctx, "redis.get", key)
	defer endSpan(span)

	value, err := s.client.Get(ctx, s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client is not configured")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be > 0")
	}
	ctx, span := startSpan(ctx, "redis.set", key)
	defer endSpan(span)

	if err := s.client.Set(ctx, s.prefixed(key), value, ttl).Err(); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client is not configured")
	}
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}

func startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	if !telemetry.ShouldTraceDependencies() {
		return ctx, nil
	}
	return telemetry.Tracer("store").Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("store.key_kind", keyKind(key)),
	))
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func recordSpanError(span trace.Span, err error) {
	if span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// keyKind keeps span attributes free of token-derived key material.
func keyKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}
