package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/timetrack/internal/config"
	"github.com/cam3ron2/timetrack/internal/exporter"
	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/health"
	"github.com/cam3ron2/timetrack/internal/permission"
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/cam3ron2/timetrack/internal/store"
	"github.com/cam3ron2/timetrack/internal/timelog"
	"go.uber.org/zap"
)

const githubUnhealthyThreshold = 3

type rateLimitProber interface {
	GetRateLimit(ctx context.Context) (githubapi.RateLimitResult, error)
}

// Services are the domain services shared by the HTTP API and the CLI.
type Services struct {
	Reports  *report.Generator
	Members  *report.MemberResolver
	Access   *permission.Validator
	TimeLog  *timelog.Service
	Location *time.Location
}

// Runtime owns the service graph, its backends and background health probing.
type Runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *exporter.Metrics
	services  Services
	cache     cacheBackend
	prober    rateLimitProber
	evaluator *health.StatusEvaluator

	storeBackend  string
	storeFallback bool

	mu                  sync.RWMutex
	storeHealthy        bool
	githubClientUsable  bool
	githubHealthy       bool
	githubFailureStreak int

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime builds every service from cfg.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, backendName, fallback := newCacheBackend(cfg, logger)
	r, err := newRuntimeWithBackends(cfg, logger, cache, &http.Client{Timeout: cfg.GitHub.RequestTimeout})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	r.storeBackend = backendName
	r.storeFallback = fallback
	return r, nil
}

func newRuntimeWithBackends(cfg *config.Config, logger *zap.Logger, cache cacheBackend, doer githubapi.HTTPDoer) (*Runtime, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metrics := exporter.NewMetrics()
	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, newRequestClient(cfg, doer))
	if err != nil {
		return nil, fmt.Errorf("create github data client: %w", err)
	}
	memberClient, err := newMemberDataClient(cfg, dataClient)
	if err != nil {
		return nil, fmt.Errorf("create github member client: %w", err)
	}

	validator := permission.NewValidator(dataClient, logger, metrics)
	members := report.NewMemberResolver(memberClient, cache, report.MemberResolverConfig{
		MaxPages: cfg.Members.MaxPages,
		CacheTTL: cfg.Members.CacheTTL,
	}, logger, metrics)
	fetcher := report.NewCommentFetcher(dataClient, cfg.Reports.MaxCommentPages, logger, metrics)
	generator, err := report.NewGenerator(dataClient, fetcher, members, report.GeneratorConfig{
		Keyword:          cfg.Reports.Keyword,
		UserConcurrency:  cfg.Reports.UserConcurrency,
		IssueConcurrency: cfg.Reports.IssueConcurrency,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("create report generator: %w", err)
	}
	timeLog, err := timelog.NewService(validator, timelog.TokenClientFactory(cfg.GitHub.APIBaseURL), logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("create time log service: %w", err)
	}

	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		services: Services{
			Reports:  generator,
			Members:  members,
			Access:   validator,
			TimeLog:  timeLog,
			Location: location,
		},
		cache:              cache,
		prober:             dataClient,
		evaluator:          health.NewStatusEvaluator(),
		storeBackend:       config.StoreBackendMemory,
		storeHealthy:       true,
		githubClientUsable: true,
		githubHealthy:      true,
		Now:                time.Now,
	}, nil
}

// Services exposes the service graph.
func (r *Runtime) Services() Services {
	return r.services
}

// Metrics exposes the runtime's Prometheus instrumentation.
func (r *Runtime) Metrics() *exporter.Metrics {
	return r.metrics
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() (http.Handler, error) {
	apiHandler, err := NewAPIHandler(APIDependencies{
		Reports:  r.services.Reports,
		Members:  r.services.Members,
		Access:   r.services.Access,
		TimeLog:  r.services.TimeLog,
		Location: r.services.Location,
		Logger:   r.logger,
		Now:      r.Now,
	})
	if err != nil {
		return nil, err
	}
	metricsHandler := exporter.NewOpenMetricsHandler(r.metrics.Registry())
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(apiHandler, metricsHandler, healthHandler), nil
}

// CurrentStatus implements health.Provider.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		StoreBackend:       r.storeBackend,
		StoreHealthy:       r.storeHealthy,
		StoreFallback:      r.storeFallback,
		GitHubClientUsable: r.githubClientUsable,
		GitHubHealthy:      r.githubHealthy,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// Start runs dependency probes until ctx is canceled.
func (r *Runtime) Start(ctx context.Context) {
	interval := r.cfg.Health.GitHubProbeInterval
	if interval <= 0 {
		interval = time.Minute
	}
	r.logger.Info(
		"starting dependency probes",
		zap.Duration("interval", interval),
		zap.String("store_backend", r.storeBackend),
		zap.Bool("store_fallback", r.storeFallback),
	)
	if r.storeFallback {
		r.logger.Warn("redis was configured but the in-memory store is serving; member cache is per replica")
	}

	go r.runProbeLoop(ctx, interval)
}

// Close releases the cache backend.
func (r *Runtime) Close() error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

func (r *Runtime) runProbeLoop(ctx context.Context, interval time.Duration) {
	r.ProbeOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce checks the store and GitHub once and updates health state.
func (r *Runtime) ProbeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if token := r.cfg.GitHub.Token; token != "" {
		probeCtx = githubapi.ContextWithToken(probeCtx, token)
	}

	storeErr := r.cache.Ping(probeCtx)
	if memory, ok := r.cache.(*store.MemoryStore); ok {
		memory.GC(r.Now())
	}

	githubOK := false
	result, err := r.prober.GetRateLimit(probeCtx)
	switch {
	case err != nil:
		r.logger.Warn("github probe failed", zap.Error(err))
	case result.Status == githubapi.EndpointStatusUnavailable || result.Status == githubapi.EndpointStatusUnknown:
		r.logger.Warn("github probe returned unexpected status", zap.Int("status_code", result.StatusCode))
	default:
		githubOK = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if storeErr != nil && r.storeHealthy {
		r.logger.Warn("store ping failed", zap.String("backend", r.storeBackend), zap.Error(storeErr))
	}
	r.storeHealthy = storeErr == nil
	r.updateGitHubHealthLocked(githubOK)
}

// updateGitHubHealthLocked flips GitHub to unhealthy after consecutive failed probes and back on
// the first success.
func (r *Runtime) updateGitHubHealthLocked(probeSuccessful bool) {
	if probeSuccessful {
		r.githubFailureStreak = 0
		r.githubHealthy = true
		return
	}
	r.githubFailureStreak++
	if r.githubFailureStreak >= githubUnhealthyThreshold {
		r.githubHealthy = false
	}
}
