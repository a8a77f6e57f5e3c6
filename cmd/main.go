/**
 * @description
 * This is the main entry point for the billing-portal service. It wires
 * together configuration, the database pool, the billing provider client,
 * the session client factory, the event producer, the reconciliation
 * scheduler and the HTTP router, then serves until a shutdown signal.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightwave/billing-portal/internal/api"
	"github.com/brightwave/billing-portal/internal/app"
	"github.com/brightwave/billing-portal/internal/billing"
	"github.com/brightwave/billing-portal/internal/config"
	"github.com/brightwave/billing-portal/internal/session"
	"github.com/brightwave/billing-portal/internal/store"
	"github.com/brightwave/billing-portal/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL mirror with pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Simple protocol keeps the pool compatible with PgBouncer transaction
	// pooling (no server-side prepared statement cache).
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Billing provider client; base URL follows the environment flag.
	billingClient := billing.NewClient(billing.BaseURLForEnvironment(cfg.BillingEnvironment), cfg.BillingAPIKey)
	logger.Info("billing client configured", "environment", cfg.BillingEnvironment)

	// Event producer; fall back to logging if the broker is unreachable so
	// the portal still serves.
	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.AMQPURL)
	if err != nil {
		logger.Warn("event bus unavailable, using logging fallback", "error", err)
		publisher = &rabbitmq.LoggingFallback{Logger: logger}
	} else {
		publisher = producer
	}
	defer publisher.Close()

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	service := app.NewService(repository, billingClient)
	syncer := app.NewSyncer(repository, publisher, logger)
	handler := api.NewHandler(service, syncer, cfg.BillingWebhookSecret, logger)

	// Per-request session clients, wired by the refresh gate to the
	// request's cookies for reads and the response's cookies for writes.
	sessionFactory := func(reads, writes session.Jar) api.SessionClient {
		return session.NewClient(cfg.SessionServiceURL, cfg.SessionJWTSecret, cfg.SessionCookieDomain, reads, writes)
	}
	refreshGate := api.SessionRefreshGate(sessionFactory, cfg.ProtectedPrefixes(), cfg.SessionCookieDomain, logger)

	router := api.NewRouter(handler, refreshGate)

	// Scheduled mirror reconciliation.
	reconciler := app.NewReconciler(repository, billingClient, logger)
	scheduler := app.NewScheduler(reconciler, cfg.ReconcileSchedule, logger)
	scheduler.Start()

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	logger.Info("server stopped")
}
