package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"gopkg.in/yaml.v3"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validTraceModes = []string{"off", "sampled", "detailed"}
)

// Auth modes for the service's own GitHub identity.
const (
	AuthModeToken = "token"
	AuthModeApp   = "app"
)

// Store backends.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Reports   ReportsConfig
	Members   MembersConfig
	Store     StoreConfig
	Health    HealthConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr        string
	LogLevel          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// GitHubConfig configures GitHub API interactions. Token is the CLI's default credential;
// the app settings give the server an identity of its own for membership lookups.
type GitHubConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	Token          string
	AuthMode       string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// RateLimitConfig configures rate-limit classification.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries of transient failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ReportsConfig tunes report generation.
type ReportsConfig struct {
	Keyword          string
	Timezone         string
	UserConcurrency  int
	IssueConcurrency int
	MaxCommentPages  int
}

// MembersConfig tunes organization member resolution.
type MembersConfig struct {
	CacheTTL time.Duration
	MaxPages int
}

// StoreConfig configures the member cache backend.
type StoreConfig struct {
	Backend            string
	Namespace          string
	MaxEntries         int
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
}

// HealthConfig configures health probe behavior.
type HealthConfig struct {
	GitHubProbeInterval time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result. Empty input yields defaults.
func Load(reader io.Reader) (*Config, error) {
	cfg, err := decode(reader)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadFile reads path, overlays environment variables from environ and validates the result.
// A missing file is not an error. A nil environ reads the process environment.
func LoadFile(path string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config %s: %w", path, err)
		default:
			defer file.Close()
			decoded, err := decode(file)
			if err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
			cfg = decoded
		}
	}

	if err := ApplyEnv(cfg, environ); err != nil {
		return nil, err
	}
	return finalize(cfg)
}

func decode(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return raw.toConfig(), nil
}

func finalize(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the configured report timezone.
func (c *Config) Location() (*time.Location, error) {
	return calendar.ResolveLocation(c.Reports.Timezone)
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	if parsed, err := url.Parse(c.GitHub.APIBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, "github.api_base_url must be an absolute url")
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.request_timeout must be > 0")
	}
	switch c.GitHub.AuthMode {
	case AuthModeToken:
	case AuthModeApp:
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0 when github.auth_mode=app")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0 when github.auth_mode=app")
		}
		if strings.TrimSpace(c.GitHub.PrivateKeyPath) == "" {
			errs = append(errs, "github.private_key_path is required when github.auth_mode=app")
		}
	default:
		errs = append(errs, "github.auth_mode must be token or app")
	}

	if c.RateLimit.MinRemainingThreshold < 0 {
		errs = append(errs, "rate_limit.min_remaining_threshold must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.InitialBackoff > c.Retry.MaxBackoff {
		errs = append(errs, "retry.initial_backoff must be <= retry.max_backoff")
	}

	if strings.TrimSpace(c.Reports.Keyword) == "" {
		errs = append(errs, "reports.keyword is required")
	}
	if _, err := calendar.ResolveLocation(c.Reports.Timezone); err != nil {
		errs = append(errs, "reports.timezone must be an IANA zone name: "+err.Error())
	}
	if c.Reports.UserConcurrency <= 0 {
		errs = append(errs, "reports.user_concurrency must be > 0")
	}
	if c.Reports.IssueConcurrency <= 0 {
		errs = append(errs, "reports.issue_concurrency must be > 0")
	}
	if c.Reports.MaxCommentPages <= 0 {
		errs = append(errs, "reports.max_comment_pages must be > 0")
	}

	if c.Members.CacheTTL < 0 {
		errs = append(errs, "members.cache_ttl must be >= 0")
	}
	if c.Members.MaxPages <= 0 {
		errs = append(errs, "members.max_pages must be > 0")
	}

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "standalone" && strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, "store.redis_addr is required when store.redis_mode=standalone")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	default:
		errs = append(errs, "store.backend must be memory or redis")
	}
	if c.Store.MaxEntries < 0 {
		errs = append(errs, "store.max_entries must be >= 0")
	}

	if c.Health.GitHubProbeInterval < 0 {
		errs = append(errs, "health.github_probe_interval must be >= 0")
	}

	if !slices.Contains(validTraceModes, c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.AuthMode == "" {
		cfg.GitHub.AuthMode = AuthModeToken
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 5 * time.Second
	}
	if cfg.Reports.Keyword == "" {
		cfg.Reports.Keyword = "Time Tracked"
	}
	if cfg.Reports.UserConcurrency == 0 {
		cfg.Reports.UserConcurrency = 4
	}
	if cfg.Reports.IssueConcurrency == 0 {
		cfg.Reports.IssueConcurrency = 8
	}
	if cfg.Reports.MaxCommentPages == 0 {
		cfg.Reports.MaxCommentPages = 10
	}
	if cfg.Members.CacheTTL == 0 {
		cfg.Members.CacheTTL = 5 * time.Minute
	}
	if cfg.Members.MaxPages == 0 {
		cfg.Members.MaxPages = 10
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "timetrack"
	}
	if cfg.Store.MaxEntries == 0 {
		cfg.Store.MaxEntries = 10000
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Health.GitHubProbeInterval == 0 {
		cfg.Health.GitHubProbeInterval = time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
	}
	if cfg.Telemetry.OTELTraceSampleRatio == 0 {
		cfg.Telemetry.OTELTraceSampleRatio = 0.1
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer       `yaml:"server"`
	GitHub    rawGitHub       `yaml:"github"`
	RateLimit rawRateLimit    `yaml:"rate_limit"`
	Retry     rawRetry        `yaml:"retry"`
	Reports   rawReports      `yaml:"reports"`
	Members   rawMembers      `yaml:"members"`
	Store     rawStore        `yaml:"store"`
	Health    rawHealth       `yaml:"health"`
	Telemetry rawTelemetry    `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr        string   `yaml:"listen_addr"`
	LogLevel          string   `yaml:"log_level"`
	ReadHeaderTimeout duration `yaml:"read_header_timeout"`
	ShutdownTimeout   duration `yaml:"shutdown_timeout"`
}

type rawGitHub struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	RequestTimeout duration `yaml:"request_timeout"`
	Token          string   `yaml:"token"`
	AuthMode       string   `yaml:"auth_mode"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawReports struct {
	Keyword          string `yaml:"keyword"`
	Timezone         string `yaml:"timezone"`
	UserConcurrency  int    `yaml:"user_concurrency"`
	IssueConcurrency int    `yaml:"issue_concurrency"`
	MaxCommentPages  int    `yaml:"max_comment_pages"`
}

type rawMembers struct {
	CacheTTL duration `yaml:"cache_ttl"`
	MaxPages int      `yaml:"max_pages"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	Namespace          string   `yaml:"namespace"`
	MaxEntries         int      `yaml:"max_entries"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

type rawHealth struct {
	GitHubProbeInterval duration `yaml:"github_probe_interval"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        r.Server.ListenAddr,
			LogLevel:          r.Server.LogLevel,
			ReadHeaderTimeout: r.Server.ReadHeaderTimeout.Duration,
			ShutdownTimeout:   r.Server.ShutdownTimeout.Duration,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			Token:          r.GitHub.Token,
			AuthMode:       r.GitHub.AuthMode,
			AppID:          r.GitHub.AppID,
			InstallationID: r.GitHub.InstallationID,
			PrivateKeyPath: r.GitHub.PrivateKeyPath,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Reports: ReportsConfig{
			Keyword:          r.Reports.Keyword,
			Timezone:         r.Reports.Timezone,
			UserConcurrency:  r.Reports.UserConcurrency,
			IssueConcurrency: r.Reports.IssueConcurrency,
			MaxCommentPages:  r.Reports.MaxCommentPages,
		},
		Members: MembersConfig{
			CacheTTL: r.Members.CacheTTL.Duration,
			MaxPages: r.Members.MaxPages,
		},
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			Namespace:          r.Store.Namespace,
			MaxEntries:         r.Store.MaxEntries,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
		},
		Health: HealthConfig{
			GitHubProbeInterval: r.Health.GitHubProbeInterval.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
