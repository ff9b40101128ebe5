package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/config"
	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type cacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// newCacheBackend prefers Redis when configured and falls back to memory when it is unreachable.
func newCacheBackend(cfg *config.Config, logger *zap.Logger) (backend cacheBackend, name string, fallback bool) {
	memory := store.NewMemoryStore(cfg.Store.MaxEntries)
	if !strings.EqualFold(strings.TrimSpace(cfg.Store.Backend), config.StoreBackendRedis) {
		return memory, config.StoreBackendMemory, false
	}

	redisStore, err := newRedisStoreFromConfig(cfg)
	if err != nil {
		logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
		return memory, config.StoreBackendMemory, true
	}
	return redisStore, config.StoreBackendRedis, false
}

func newRedisStoreFromConfig(cfg *config.Config) (*store.RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.Store.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Store.RedisMasterSet,
			SentinelAddrs: cfg.Store.RedisSentinelAddrs,
			Password:      cfg.Store.RedisPassword,
			DB:            cfg.Store.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisStore(redisClient, store.RedisStoreConfig{
		Namespace: cfg.Store.Namespace,
	}), nil
}

// newRequestClient builds the retrying request client shared by every data client.
func newRequestClient(cfg *config.Config, doer githubapi.HTTPDoer) *githubapi.Client {
	return githubapi.NewClient(doer, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		Now:                   time.Now,
	})
}

// newMemberDataClient returns the data client used for organization membership. In app mode it
// authenticates as the GitHub App installation instead of the caller.
func newMemberDataClient(cfg *config.Config, callerClient *githubapi.DataClient) (*githubapi.DataClient, error) {
	if cfg.GitHub.AuthMode != config.AuthModeApp {
		return callerClient, nil
	}

	httpClient, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
		Timeout:        cfg.GitHub.RequestTimeout,
		BaseTransport:  http.DefaultTransport,
	})
	if err != nil {
		return nil, err
	}
	return githubapi.NewDataClient(cfg.GitHub.APIBaseURL, newRequestClient(cfg, httpClient))
}
