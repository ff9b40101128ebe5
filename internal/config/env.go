package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// envOverrides lists the settings that may come from the environment. Unset variables leave
// the file value alone.
type envOverrides struct {
	GitHubToken     string `env:"GITHUB_TOKEN"`
	GitHubAPIURL    string `env:"TIMETRACK_GITHUB_API_URL"`
	LogLevel        string `env:"TIMETRACK_LOG_LEVEL"`
	ListenAddr      string `env:"TIMETRACK_LISTEN_ADDR"`
	Timezone        string `env:"TIMETRACK_TIMEZONE"`
	StoreBackend    string `env:"TIMETRACK_STORE_BACKEND"`
	RedisAddr       string `env:"TIMETRACK_REDIS_ADDR"`
	RedisPassword   string `env:"TIMETRACK_REDIS_PASSWORD"`
	TraceMode       string `env:"TIMETRACK_TRACE_MODE"`
	TracingEnabled  *bool  `env:"TIMETRACK_TRACING_ENABLED"`
	UserConcurrency int    `env:"TIMETRACK_USER_CONCURRENCY"`
}

// ApplyEnv overlays environment variables onto cfg. A nil environ reads the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var overrides envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	setIfPresent(&cfg.GitHub.Token, overrides.GitHubToken)
	setIfPresent(&cfg.GitHub.APIBaseURL, overrides.GitHubAPIURL)
	setIfPresent(&cfg.Server.LogLevel, overrides.LogLevel)
	setIfPresent(&cfg.Server.ListenAddr, overrides.ListenAddr)
	setIfPresent(&cfg.Reports.Timezone, overrides.Timezone)
	setIfPresent(&cfg.Store.Backend, overrides.StoreBackend)
	setIfPresent(&cfg.Store.RedisAddr, overrides.RedisAddr)
	setIfPresent(&cfg.Store.RedisPassword, overrides.RedisPassword)
	setIfPresent(&cfg.Telemetry.OTELTraceMode, overrides.TraceMode)
	if overrides.TracingEnabled != nil {
		cfg.Telemetry.OTELEnabled = *overrides.TracingEnabled
	}
	if overrides.UserConcurrency != 0 {
		cfg.Reports.UserConcurrency = overrides.UserConcurrency
	}
	return nil
}

// LoadDotEnv loads the first existing file in paths into the process environment.
// Variables that are already set win over the file.
func LoadDotEnv(paths ...string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("load env file %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

func setIfPresent(target *string, value string) {
	if value != "" {
		*target = value
	}
}
