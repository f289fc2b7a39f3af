// Package app assembles the storage backend and the domain services from
// Config. cmd/server, cmd/worker and cmd/seed share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"jobcost/internal/config"
	"jobcost/internal/core/id"
	corenumerator "jobcost/internal/core/numerator"
	"jobcost/internal/core/tx"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/integrity"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/domain/reports"
	"jobcost/internal/infrastructure/lock"
	"jobcost/internal/infrastructure/numerator"
	"jobcost/internal/infrastructure/storage/memory"
	"jobcost/internal/infrastructure/storage/postgres"
	"jobcost/internal/infrastructure/storage/postgres/costing_repo"
	"jobcost/internal/infrastructure/storage/postgres/document_repo"
	"jobcost/internal/infrastructure/storage/postgres/register_repo"
	"jobcost/internal/infrastructure/storage/postgres/report_repo"
	"jobcost/pkg/logger"
)

// App holds the wired services of one process.
type App struct {
	Config config.Config

	Costing    *costing.Service
	Stock      *stock.Service
	Orders     *po.Service
	Allocation *allocation.Service
	Reconcile  *reconcile.Service
	Sweeper    *integrity.Sweeper
	Violations integrity.ViolationLog
	Reports    *reports.Service

	// Postgres only.
	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Idempotency *postgres.IdempotencyStore

	// Redis is nil without REDIS_URL; Runner then runs locally.
	Redis  *redis.Client
	Runner lock.Runner

	staff   staffWriter
	closers []func()
}

type staffWriter func(ctx context.Context, staffID id.ID, name string) error

type backend struct {
	txm        tx.ReadOnlyManager
	stock      stock.Repository
	costing    costing.Repository
	orders     po.Repository
	staff      costing.StaffDirectory
	numbers    corenumerator.Generator
	recorder   audit.Recorder
	violations integrity.ViolationLog
	snapshots  reconcile.SnapshotStore
}

// New connects to the configured storage and redis and wires the services.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Runner: lock.LocalRunner{}}

	var (
		b   *backend
		err error
	)
	switch cfg.Storage {
	case config.StorageMemory:
		b = a.memoryBackend()
	default:
		if b, err = a.postgresBackend(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.Runner = lock.NewRedisRunner(client)
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	a.Stock = stock.NewService(b.stock, b.txm)
	a.Orders = po.NewService(b.orders, a.Stock, b.numbers, b.recorder, b.txm)
	a.Costing = costing.NewService(b.costing, a.Stock, b.numbers, b.recorder, b.txm,
		costing.WithStaffDirectory(b.staff),
		costing.WithJobNumberStart(cfg.JobNumberStart),
	)
	a.Allocation = allocation.NewService(a.Stock, a.Orders, a.Costing, b.txm)
	a.Reconcile = reconcile.NewService(a.Costing, b.snapshots, reconcileOptions(cfg.Reconcile))
	a.Violations = b.violations
	a.Sweeper = integrity.NewSweeper(a.Costing, a.Stock, a.Orders, b.violations, b.txm)
	a.Reports = reports.NewService(a.Costing, a.Stock)

	logger.Info(ctx, "application wired", "storage", cfg.Storage, "redis", a.Redis != nil)
	return a, nil
}

func (a *App) memoryBackend() *backend {
	store := memory.NewStore()
	staff := memory.NewStaffDirectory()
	a.staff = func(_ context.Context, staffID id.ID, _ string) error {
		staff.AddStaff(staffID)
		return nil
	}
	return &backend{
		txm:        store,
		stock:      memory.NewStockRepo(store),
		costing:    memory.NewCostingRepo(store),
		orders:     memory.NewPurchaseOrderRepo(store),
		staff:      staff,
		numbers:    memory.NewNumerator(store),
		recorder:   memory.NewAuditRecorder(store),
		violations: memory.NewViolationLog(store),
		snapshots:  memory.NewSnapshotStore(store),
	}
}

func (a *App) postgresBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	txm := postgres.NewTxManager(pool)
	a.TxManager = txm
	a.Idempotency = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)

	recorder, err := postgres.NewAuditRecorder(txm)
	if err != nil {
		return nil, fmt.Errorf("audit recorder: %w", err)
	}
	staff := costing_repo.NewStaffDirectory(txm)
	a.staff = staff.AddStaff

	return &backend{
		txm:     txm,
		stock:   register_repo.NewStockRepo(txm),
		costing: costing_repo.NewRepo(txm),
		orders:  document_repo.NewPurchaseOrderRepo(txm),
		staff:   staff,
		numbers: numerator.NewService(func(ctx context.Context) numerator.Querier {
			return txm.GetQuerier(ctx)
		}),
		recorder:   recorder,
		violations: report_repo.NewViolationLog(txm),
		snapshots:  report_repo.NewSnapshotStore(txm),
	}, nil
}

func reconcileOptions(c config.ReconcileConfig) reconcile.Options {
	opts := reconcile.DefaultOptions()
	if c.DateWindowDays > 0 {
		opts.DateWindowDays = c.DateWindowDays
	}
	if c.MinScore > 0 {
		opts.MinScore = c.MinScore
	}
	if c.AmountTolerance.IsPositive() {
		opts.AmountTolerance = c.AmountTolerance
	}
	opts.Scope = c.Scope
	return opts
}

// AddStaff registers a staff member that time lines may reference.
func (a *App) AddStaff(ctx context.Context, staffID id.ID, name string) error {
	return a.staff(ctx, staffID, name)
}

// Ping checks the database and redis.
func (a *App) Ping(ctx context.Context) error {
	if a.TxManager != nil {
		if err := a.TxManager.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
