// Package main is the entry point for the background worker. It runs the
// integrity sweep and the reconciliation sweep on tickers; with REDIS_URL set
// only one worker in the fleet runs each sweep at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"jobcost/internal/app"
	"jobcost/internal/config"
	appctx "jobcost/internal/core/context"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/infrastructure/export"
	"jobcost/internal/infrastructure/http/v1/handlers"
	"jobcost/pkg/logger"
)

const (
	reconcileLockName   = "reconcile"
	idempotencyLockName = "idempotency-cleanup"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting jobcost worker", "storage", cfg.Storage)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer application.Close()

	if err := application.Ping(ctx); err != nil {
		log.Fatalw("dependency check failed", "error", err)
	}

	worker := NewWorker(application, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic sweeps.
type Worker struct {
	app *app.App
	log *logger.Logger
	now func() time.Time
}

func NewWorker(application *app.App, log *logger.Logger) *Worker {
	return &Worker{
		app: application,
		log: log.WithComponent("worker"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. Each sweep runs once at start.
func (w *Worker) Run(ctx context.Context) {
	cfg := w.app.Config

	sweepTicker := time.NewTicker(cfg.SweepInterval)
	defer sweepTicker.Stop()

	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	w.exclusive(ctx, handlers.SweepLockName, cfg.SweepInterval, w.sweep)
	w.exclusive(ctx, reconcileLockName, cfg.ReconcileInterval, w.reconcile)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			w.exclusive(ctx, handlers.SweepLockName, cfg.SweepInterval, w.sweep)
		case <-reconcileTicker.C:
			w.exclusive(ctx, reconcileLockName, cfg.ReconcileInterval, w.reconcile)
		case <-cleanupTicker.C:
			w.exclusive(ctx, idempotencyLockName, time.Hour, w.cleanupIdempotency)
			if w.app.Pool != nil {
				w.app.Pool.LogStats(ctx)
			}
		}
	}
}

// exclusive runs fn under the named lock. The lock lives for at most one
// interval so that a crashed worker does not block the next run.
func (w *Worker) exclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ran, err := w.app.Runner.RunExclusive(ctx, name, ttl, fn)
	if err != nil {
		w.log.Errorw("sweep failed", "sweep", name, "trace_id", appctx.GetTraceID(ctx), "error", err)
		return
	}
	if !ran {
		w.log.Debugw("sweep skipped, lock held elsewhere", "sweep", name)
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	report, err := w.app.Sweeper.Run(ctx)
	if err != nil {
		return err
	}
	if len(report.Violations) > 0 {
		w.log.Warnw("integrity violations open",
			"count", len(report.Violations),
			"by_code", report.CountByCode(),
		)
	}
	return nil
}

func (w *Worker) reconcile(ctx context.Context) error {
	cfg := w.app.Config
	end := w.now()
	res, err := w.app.Reconcile.Run(ctx, reconcile.RunInput{
		PeriodStart: end.Add(-cfg.ReconcileLookback),
		PeriodEnd:   end,
	})
	if err != nil {
		return err
	}

	w.log.Infow("reconciliation finished",
		"matched", len(res.Matched),
		"unmatched_external", len(res.UnmatchedExternal),
		"unmatched_internal", len(res.UnmatchedInternal),
		"ambiguous", len(res.Ambiguous()),
		"excluded_external", res.ExcludedExternal,
	)

	if cfg.ExportDir == "" {
		return nil
	}
	return w.writeReport(res)
}

func (w *Worker) writeReport(res *reconcile.Result) error {
	path := filepath.Join(w.app.Config.ExportDir, export.FileName(res))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := export.Write(f, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	w.log.Infow("reconciliation report written", "path", path)
	return nil
}

func (w *Worker) cleanupIdempotency(ctx context.Context) error {
	if w.app.Idempotency == nil {
		return nil
	}
	n, err := w.app.Idempotency.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
	return nil
}
