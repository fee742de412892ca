// Package main is the entry point for the cinemagic billing API server.
//
// It loads configuration, connects the Postgres pool, wires the Stripe and
// montage-engine clients into the billing services, mounts the HTTP routes
// on the core chassis, and serves until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cinemagic/internal/api/handlers"
	"cinemagic/internal/billing"
	"cinemagic/internal/config"
	"cinemagic/internal/core"
	"cinemagic/internal/db"
	"cinemagic/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("cinemagic API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newDBPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	profileRepo := db.NewProfileRepo(pool, logger)
	eventRepo := db.NewEventRepo(pool, logger)

	// Outbound clients. The montage engine holds the response open for the
	// duration of the render, so its HTTP client timeout must cover it.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 30 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		},
	)
	montageClient := external.NewMontageClient(
		&http.Client{Timeout: cfg.Montage.Timeout},
		external.MontageClientConfig{
			APIKey:  cfg.Montage.APIKey.Unmask(),
			BaseURL: cfg.Montage.EngineURL,
			Logger:  logger,
		},
	)

	// Billing services.
	resolver := billing.NewIdentityResolver(profileRepo, stripeClient, logger)
	checkout := billing.NewCheckoutService(resolver, stripeClient, billing.CheckoutConfig{
		DefaultPriceID: cfg.Billing.StripePriceID,
		ReturnBaseURL:  cfg.Server.PublicBaseURL,
		TrialDays:      cfg.Billing.TrialPeriodDays,
	}, logger)
	reconciler := billing.NewReconciler(profileRepo, eventRepo, logger)
	gate := billing.NewEntitlementGate(profileRepo, logger)
	dispatcher := billing.NewMontageDispatcher(gate, montageClient, profileRepo, logger)

	// HTTP chassis and handlers.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	checkoutHandler := handlers.NewCheckoutHandler(checkout, srv.Validator, logger)
	webhookHandler := handlers.NewWebhookHandler(
		&external.StripeVerifier{},
		reconciler,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	montageHandler := handlers.NewMontageHandler(dispatcher, srv.Validator, logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		func(r chi.Router) { checkoutHandler.RegisterRoutes(r) },
		func(r chi.Router) { webhookHandler.RegisterRoutes(r) },
		func(r chi.Router) { montageHandler.RegisterRoutes(r) },
	)
	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// newDBPool builds the pgx connection pool from database configuration.
func newDBPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = dbCfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// runHTTPServer serves HTTP until the context is cancelled or the listener
// fails, then shuts down gracefully.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Montage renders stream their response well past the usual write
		// window; the per-route context deadline bounds them instead.
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
