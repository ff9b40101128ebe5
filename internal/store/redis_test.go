package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/timetrack/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeRedisClient struct {
	mu        sync.Mutex
	values    map[string]string
	ttls      map[string]time.Duration
	failWith  error
	pingError error
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (c *fakeRedisClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return redis.NewStringResult("", c.failWith)
	}
	value, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (c *fakeRedisClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return redis.NewStatusResult("", c.failWith)
	}
	switch typed := value.(type) {
	case []byte:
		c.values[key] = string(typed)
	case string:
		c.values[key] = typed
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	c.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (c *fakeRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			delete(c.values, key)
			delete(c.ttls, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (c *fakeRedisClient) Ping(_ context.Context) *redis.StatusCmd {
	if c.pingError != nil {
		return redis.NewStatusResult("", c.pingError)
	}
	return redis.NewStatusResult("PONG", nil)
}

func TestRedisStoreGetSetDelete(t *testing.T) {
	t.Parallel()

	client := newFakeRedisClient()
	store := newRedisStoreFromCommander(client, nil, RedisStoreConfig{})
	ctx := context.Background()

	if err := store.Set(ctx, "members:acme:abc", []byte(`["alice"]`), 5*time.Minute); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	if _, ok := client.values["timetrack:members:acme:abc"]; !ok {
		t.Fatalf("value not stored under namespaced key; keys=%v", client.values)
	}
	if client.ttls["timetrack:members:acme:abc"] != 5*time.Minute {
		t.Fatalf("ttl = %s, want 5m", client.ttls["timetrack:members:acme:abc"])
	}

	value, ok, err := store.Get(ctx, "members:acme:abc")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if !ok || string(value) != `["alice"]` {
		t.Fatalf("Get() = %q, %t", value, ok)
	}

	if err := store.Delete(ctx, "members:acme:abc"); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	_, ok, err = store.Get(ctx, "members:acme:abc")
	if err != nil {
		t.Fatalf("Get() after delete unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("Get() ok = true after delete")
	}
}

func TestRedisStoreNamespaceAndErrors(t *testing.T) {
	t.Parallel()

	client := newFakeRedisClient()
	store := newRedisStoreFromCommander(client, nil, RedisStoreConfig{Namespace: " custom "})
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	if _, ok := client.values["custom:k"]; !ok {
		t.Fatalf("expected custom namespace key; keys=%v", client.values)
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("Set() with zero ttl expected error")
	}

	client.failWith = errors.New("connection refused")
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("Get() expected error")
	}
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Fatalf("Set() expected error")
	}

	client.pingError = errors.New("down")
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("Ping() expected error")
	}
}

func TestRedisStoreClose(t *testing.T) {
	t.Parallel()

	closed := false
	store := newRedisStoreFromCommander(newFakeRedisClient(), func() error {
		closed = true
		return nil
	}, RedisStoreConfig{})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if !closed {
		t.Fatalf("Close() did not invoke close func")
	}

	var nilStore *RedisStore
	if err := nilStore.Close(); err != nil {
		t.Fatalf("nil Close() unexpected error: %v", err)
	}
	if _, _, err := nilStore.Get(context.Background(), "k"); err == nil {
		t.Fatalf("nil Get() expected error")
	}
}

func TestRedisStoreEmitsTracingSpans(t *testing.T) {
	if _, err := telemetry.Setup(telemetry.Config{Enabled: true, TraceMode: "detailed"}); err != nil {
		t.Fatalf("telemetry.Setup() unexpected error: %v", err)
	}

	previousProvider := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(recorder),
	)
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previousProvider)
		_ = provider.Shutdown(context.Background())
		_, _ = telemetry.Setup(telemetry.Config{})
	})

	store := newRedisStoreFromCommander(newFakeRedisClient(), nil, RedisStoreConfig{})
	if err := store.Set(context.Background(), "members:acme:abc", []byte("[]"), time.Minute); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "members:acme:abc"); err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}

	seen := map[string]bool{}
	for _, span := range recorder.Ended() {
		seen[span.Name()] = true
		for _, attr := range span.Attributes() {
			if attr.Key == "store.key_kind" && attr.Value.AsString() != "members" {
				t.Fatalf("store.key_kind = %q, want members", attr.Value.AsString())
			}
		}
	}
	if !seen["redis.set"] {
		t.Fatalf("missing redis.set span")
	}
	if !seen["redis.get"] {
		t.Fatalf("missing redis.get span")
	}
}
