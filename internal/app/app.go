// Package app wires the process-wide collaborators shared by the batch
// commands: configuration, the run logger, metrics, the optional product
// notifier and the optional health/metrics server.
package app

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/hydro-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydro-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-etl/internal/config"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
)

// Options override configuration for a single invocation.
type Options struct {
	// LogDir takes precedence over LOG_DIR when set.
	LogDir string
	// EnvFile is loaded before the environment is read; missing files are ignored.
	// Defaults to .env.
	EnvFile string
	// Metrics defaults to collectors registered with the default registry.
	Metrics *observability.Metrics
}

// Runtime is the set of collaborators a command runs with.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Notifier domain.ProductNotifier // nil when KAFKA_BROKERS is unset
	RunID    string

	notifier *kafkaadapter.Notifier
	logFile  io.Closer
	srv      *httpadapter.Server
}

// Start loads configuration and builds the runtime for tool.
func Start(tool string, opts Options) (*Runtime, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.LogDir != "" {
		cfg.LogDir = opts.LogDir
	}

	logger, logFile, err := observability.NewRunLogger(cfg, tool, domain.Now())
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		RunID:   uuid.NewString(),
		logFile: logFile,
	}
	if cfg.NotificationsEnabled() {
		rt.notifier = kafkaadapter.NewNotifier(cfg, logger)
		rt.Notifier = rt.notifier
		logger.Info("product notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	return rt, nil
}

// Serve starts the health/metrics server in the background when HTTP_ADDR is set.
func (rt *Runtime) Serve(ready httpadapter.ReadinessChecker) {
	if rt.Config.HTTPAddr == "" {
		return
	}
	rt.srv = httpadapter.NewServer(rt.Config.HTTPAddr, ready, rt.Logger)
	go func() {
		if err := rt.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error("http server error", "error", err)
		}
	}()
}

// Close drains the server and releases the notifier and log file.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rt.Config.ShutdownTimeout)
		defer cancel()
		if err := rt.srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.notifier != nil {
		if err := rt.notifier.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.logFile.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
