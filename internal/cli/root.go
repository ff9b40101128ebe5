// Package cli wires the timetrack commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/timetrack/internal/app"
	"github.com/cam3ron2/timetrack/internal/config"
	"github.com/cam3ron2/timetrack/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the command tree. Zero values use the process streams and environment.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Environ replaces the process environment for config overlays. .env files are only
	// loaded when it is nil.
	Environ map[string]string
	Now     func() time.Time
}

type rootFlags struct {
	configPath string
	envFile    string
	token      string
	logLevel   string
}

// session is one command's loaded config, logger and service graph.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *app.Runtime
	token   string
	close   func()
}

// NewRootCommand builds the timetrack command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "timetrack",
		Short: "Report and log time tracked in GitHub issue comments",
		Long: `timetrack aggregates "Time Tracked" issue comments into per-day reports,
checks repository write access and records new time entries.`,
		Example: `
  # Last seven days for one user
  timetrack report --org acme --user alice

  # Every member of an organization, as a spreadsheet
  timetrack report --org acme --start 2026-03-01 --end 2026-03-31 --output march.xlsx

  # Log ninety minutes on an issue
  timetrack log acme/api#42 --hours 1.5 --description "code review"

  # Serve the HTTP API
  timetrack serve --config timetrack.yaml
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	root.PersistentFlags().StringVar(&flags.configPath, "config", "timetrack.yaml", "path to YAML config file (missing file uses defaults)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "GitHub token (defaults to github.token or GITHUB_TOKEN)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(flags, opts),
		newReportCommand(flags, opts),
		newMembersCommand(flags, opts),
		newCheckAccessCommand(flags, opts),
		newLogCommand(flags, opts),
		newWhoAmICommand(flags, opts),
	)
	return root
}

func loadConfig(flags *rootFlags, opts Options) (*config.Config, error) {
	if opts.Environ == nil && strings.TrimSpace(flags.envFile) != "" {
		if _, err := config.LoadDotEnv(flags.envFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFile(flags.configPath, opts.Environ)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level := strings.TrimSpace(flags.logLevel); level != "" {
		cfg.Server.LogLevel = level
	}
	return cfg, nil
}

// openSession loads config and builds the service graph. requireToken rejects sessions without a
// caller token.
func openSession(flags *rootFlags, opts Options, requireToken bool) (*session, error) {
	cfg, err := loadConfig(flags, opts)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(flags.token)
	if token == "" {
		token = strings.TrimSpace(cfg.GitHub.Token)
	}
	if requireToken && token == "" {
		return nil, fmt.Errorf("GitHub token is required: pass --token or set GITHUB_TOKEN")
	}

	logger, err := newLogger(cfg.Server.LogLevel, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "timetrack",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		syncLogger(logger)
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	runtime, err := app.NewRuntime(cfg, logger)
	if err != nil {
		shutdownTelemetry(telemetryRuntime)
		syncLogger(logger)
		return nil, fmt.Errorf("build runtime: %w", err)
	}
	runtime.Now = opts.Now

	return &session{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		token:   token,
		close: func() {
			_ = runtime.Close()
			shutdownTelemetry(telemetryRuntime)
			syncLogger(logger)
		},
	}, nil
}

func newLogger(level string, sink io.Writer) (*zap.Logger, error) {
	if sink == os.Stderr {
		loggerConfig := zap.NewProductionConfig()
		loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
		return loggerConfig.Build()
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(sink), logLevel(level))
	return zap.New(core), nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func syncLogger(logger *zap.Logger) {
	if err := logger.Sync(); err != nil && !shouldIgnoreLoggerSyncError(err) {
		_, _ = fmt.Fprintf(os.Stderr, "timetrack: sync logger: %v\n", err)
	}
}

// shouldIgnoreLoggerSyncError reports errors returned when syncing a terminal or pipe.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}

func shutdownTelemetry(runtime telemetry.Runtime) {
	if runtime.Shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = runtime.Shutdown(ctx)
}
