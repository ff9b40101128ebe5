package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cam3ron2/timetrack/internal/config"
	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/store"
	"go.uber.org/zap"
)

func loadDefaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile("", map[string]string{})
	if err != nil {
		t.Fatalf("config.LoadFile() unexpected error: %v", err)
	}
	return cfg
}

func TestNewCacheBackend(t *testing.T) {
	t.Parallel()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		cfg := loadDefaultConfig(t)
		backend, name, fallback := newCacheBackend(cfg, zap.NewNop())
		if _, ok := backend.(*store.MemoryStore); !ok {
			t.Fatalf("backend = %T, want *store.MemoryStore", backend)
		}
		if name != config.StoreBackendMemory || fallback {
			t.Fatalf("name=%q fallback=%t, want memory without fallback", name, fallback)
		}
		if err := backend.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set() unexpected error: %v", err)
		}
	})

	t.Run("unreachable_redis_falls_back", func(t *testing.T) {
		t.Parallel()

		cfg := loadDefaultConfig(t)
		cfg.Store.Backend = config.StoreBackendRedis
		cfg.Store.RedisAddr = "127.0.0.1:1"
		backend, name, fallback := newCacheBackend(cfg, zap.NewNop())
		if _, ok := backend.(*store.MemoryStore); !ok {
			t.Fatalf("backend = %T, want *store.MemoryStore", backend)
		}
		if name != config.StoreBackendMemory || !fallback {
			t.Fatalf("name=%q fallback=%t, want memory with fallback", name, fallback)
		}
	})
}

func TestNewRedisStoreFromConfigRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := newRedisStoreFromConfig(nil); err == nil {
		t.Fatalf("newRedisStoreFromConfig() expected error")
	}
}

func TestNewMemberDataClient(t *testing.T) {
	t.Parallel()

	cfg := loadDefaultConfig(t)
	caller, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, newRequestClient(cfg, nil))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := newMemberDataClient(cfg, caller)
	if err != nil {
		t.Fatalf("newMemberDataClient() unexpected error: %v", err)
	}
	if got != caller {
		t.Fatalf("token mode should reuse the caller client")
	}

	appCfg := *cfg
	appCfg.GitHub.AuthMode = config.AuthModeApp
	appCfg.GitHub.AppID = 1
	appCfg.GitHub.InstallationID = 2
	appCfg.GitHub.PrivateKeyPath = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := newMemberDataClient(&appCfg, caller); err == nil {
		t.Fatalf("newMemberDataClient() expected error for missing key file")
	}
}
