// Package main is the entry point for the job costing API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobcost/internal/app"
	"jobcost/internal/config"
	v1 "jobcost/internal/infrastructure/http/v1"
	"jobcost/internal/infrastructure/http/v1/handlers"
	"jobcost/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting jobcost server", "storage", cfg.Storage, "version", version)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer application.Close()

	routerCfg := v1.RouterConfig{
		Services: v1.Services{
			Costing:    application.Costing,
			Stock:      application.Stock,
			Orders:     application.Orders,
			Allocation: application.Allocation,
			Reconcile:  application.Reconcile,
			Sweeper:    application.Sweeper,
			Violations: application.Violations,
			Reports:    application.Reports,
		},
		Logger:           log,
		AllowedOrigins:   cfg.AllowedOrigins,
		SweepRunner:      application.Runner,
		MetadataRegistry: setupMetadataRegistry(application.Costing.Registry()),
		Version:          version,
		Storage:          cfg.Storage,
		Debug:            cfg.Development(),
	}
	if application.Idempotency != nil {
		routerCfg.Idempotency = application.Idempotency
	}
	if application.TxManager != nil {
		routerCfg.HealthChecks = append(routerCfg.HealthChecks, handlers.HealthCheck{Name: "database", Check: application.TxManager.Ping})
		routerCfg.HealthStats = func() any { return application.Pool.Stats() }
	}
	if application.Redis != nil {
		routerCfg.HealthChecks = append(routerCfg.HealthChecks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return application.Redis.Ping(ctx).Err() },
		})
	}
	log.Info("metadata registry initialized")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
