package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/relica"
	"github.com/coregx/echobus/cmd/echo-server/internal/api"
	"github.com/coregx/echobus/cmd/echo-server/internal/config"
)

const shutdownTimeout = 30 * time.Second

// bootstrap loads configuration, builds the logger and opens the migrated database.
func bootstrap(ctx context.Context) (*config.Config, echobus.Logger, *sql.DB, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return nil, nil, nil, err
	}

	slogger := newSlogLogger(os.Stderr, cfg.Logging, isDebug)
	slog.SetDefault(slogger)
	logger := echobus.NewSlogLogger(slogger)

	logger.Infof("Configuration loaded: server=%s:%d, database=%s, broker=%s, policy=%s",
		cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver, cfg.Broker.Kind, cfg.Retry.Strategy)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := echobus.Migrate(ctx, db, cfg.Database.Driver, echobus.MigrateOptions{
		Sandbox: cfg.Database.Sandbox,
		Logger:  logger,
	}); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	return cfg, logger, db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, logger, db, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("Failed to close database: %v", closeErr)
		}
	}()

	repos := relica.NewRepositories(db, cfg.Database.Driver)
	metrics := echobus.NewMetrics(prometheus.DefaultRegisterer)

	tr, err := openTransport(ctx, cfg.Broker, cfg.Echo.Topic, logger)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", cfg.Broker.Kind, err)
	}
	defer func() {
		if closeErr := tr.Close(); closeErr != nil {
			logger.Errorf("Failed to close transport: %v", closeErr)
		}
	}()

	var notifications echobus.NotificationService = &echobus.NoOpNotificationService{}
	if cfg.Echo.EnableNotifications {
		notifications = echobus.NewLoggingNotificationService(logger)
	}

	publisher, err := echobus.NewPublisher(
		echobus.WithPublisherProducer(tr.producer),
		echobus.WithPublisherTopic(cfg.Echo.Topic),
		echobus.WithPublisherLogger(logger),
		echobus.WithPublisherMetrics(metrics),
	)
	if err != nil {
		return err
	}

	service, err := echobus.NewEchoService(
		echobus.WithEchoPublisher(publisher),
		echobus.WithEchoStore(repos.Message),
		echobus.WithEchoTopic(cfg.Echo.Topic),
		echobus.WithEchoLogger(logger),
	)
	if err != nil {
		return err
	}

	registry := echobus.NewRegistry()
	if err := registry.Bind(service.Topic(), service); err != nil {
		return err
	}

	sink, err := echobus.NewDeadLetterPublisher(
		echobus.WithDeadLetterProducer(tr.producer),
		echobus.WithDeadLetterRepository(repos.DeadLetter),
		echobus.WithDeadLetterNotifications(notifications),
		echobus.WithDeadLetterLogger(logger),
	)
	if err != nil {
		return err
	}

	dispatcher, err := echobus.NewDispatcher(
		echobus.WithConsumer(tr.consumer),
		echobus.WithRegistry(registry),
		echobus.WithDeadLetterSink(sink),
		echobus.WithRetryPolicy(cfg.Retry.Policy()),
		echobus.WithNotifications(notifications),
		echobus.WithMetrics(metrics),
		echobus.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	logger.Info(dispatcher.RetrySchedule())

	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- dispatcher.Run(ctx)
	}()

	handler := api.NewHandler(service, repos.DeadLetter, promhttp.Handler(), logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	var runErr error
	dispatching := true
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case runErr = <-dispatchDone:
		dispatching = false
		if runErr != nil {
			logger.Errorf("Dispatcher stopped: %v", runErr)
		}
	case runErr = <-serveDone:
		logger.Errorf("HTTP server failed: %v", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// In-flight deliveries finish and commit before the transport closes.
	if dispatching {
		if err := <-dispatchDone; err != nil && runErr == nil {
			runErr = err
		}
	}

	logger.Info("Server stopped gracefully")
	return runErr
}
