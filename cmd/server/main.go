// Package main provides the entry point for the paper timeline HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-timeline/internal/app"
	"github.com/helixir/paper-timeline/internal/config"
	"github.com/helixir/paper-timeline/internal/database"
	"github.com/helixir/paper-timeline/internal/events"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/observability"
	httpserver "github.com/helixir/paper-timeline/internal/server/http"
)

const serviceName = "paper-timeline"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		Service:    serviceName,
	})
	logger = observability.WithComponent(logger, "server")
	logger.Info().Msg("paper-timeline server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Connect to PostgreSQL only when a component reads or writes it.
	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		db.RequireTables(cfg.DatabaseTables()...)
		logger.Info().Strs("tables", cfg.DatabaseTables()).Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				return err
			}
		}
	}

	// Like store and engine.
	store, err := app.NewStore(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("create like store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close like store")
			}
		}()
	}

	origin := app.Origin()
	engineOpts := []likes.EngineOption{likes.WithMetrics(metrics)}

	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewPublisher(app.EventsConfig(cfg.Kafka, origin), logger)
		engineOpts = append(engineOpts, likes.WithPublisher(publisher))
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("like event publisher configured")
	}

	engine, err := app.NewEngine(cfg, store, logger, engineOpts...)
	if err != nil {
		return fmt.Errorf("create like engine: %w", err)
	}

	// Corpus source and timeline.
	source, err := app.NewSource(cfg, db, metrics, logger)
	if err != nil {
		return fmt.Errorf("create corpus source: %w", err)
	}

	tl, err := app.NewTimeline(cfg, source, engine, nil, metrics, logger)
	if err != nil {
		return fmt.Errorf("create timeline: %w", err)
	}

	// A failed initial load is served as a 503 page and can be retried
	// through the reload endpoint.
	if err := tl.Init(ctx); err != nil {
		logger.Error().Err(err).Msg("initial corpus load failed")
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	var health httpserver.HealthChecker
	if db != nil {
		health = db
	}
	httpSrv := httpserver.NewServer(httpCfg, tl, health, metrics, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 3)

	// Apply likes persisted by peer instances.
	listenerCtx, cancelListener := context.WithCancel(ctx)
	defer cancelListener()
	var listener *events.Listener
	if cfg.Kafka.Enabled && cfg.Kafka.Consume {
		listener = events.NewListener(app.EventsConfig(cfg.Kafka, origin), tl, logger)
		go func() {
			if err := listener.Run(listenerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("like listener error: %w", err)
			}
		}()
	}

	// Start HTTP server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", httpCfg.Address).
		Str("corpus_source", source.Name()).
		Str("like_backend", cfg.Likes.Backend)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-timeline is ready")

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-timeline")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	cancelListener()
	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("like listener close error")
		}
	}

	// Let accepted likes reach the store before the publisher closes.
	if err := engine.WaitContext(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending like writes abandoned at shutdown")
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("like publisher close error")
		}
	}

	logger.Info().Msg("paper-timeline shutdown complete")
	return runErr
}

// migrate applies pending schema migrations.
func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
