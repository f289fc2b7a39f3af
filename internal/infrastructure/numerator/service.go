// Package numerator provides the PostgreSQL implementation of core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	corenumerator "jobcost/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier for ctx, so numbers are taken inside the
// caller's transaction (job creation rolls the number back with the job).
type QuerierFunc func(ctx context.Context) Querier

type cachedRange struct {
	current int64
	max     int64
}

// Service hands out numbers from the sys_sequences table.
type Service struct {
	querier QuerierFunc

	// cacheMu protects ranges map
	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// NewService creates a numerator bound to a querier resolver.
func NewService(q QuerierFunc) *Service {
	return &Service{
		querier: q,
		ranges:  make(map[string]*cachedRange),
	}
}

// NextNumber implements corenumerator.Generator.
func (s *Service) NextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options) (int64, error) {
	if s == nil || s.querier == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}
	if cfg.Sequence == "" {
		return 0, fmt.Errorf("numerator: empty sequence")
	}
	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	switch opts.Strategy {
	case corenumerator.StrategyCached:
		return s.nextCached(ctx, cfg, opts)
	default:
		return s.nextStrict(ctx, cfg)
	}
}

// nextStrict uses UPSERT + RETURNING. A fresh sequence starts at cfg.Start.
func (s *Service) nextStrict(ctx context.Context, cfg corenumerator.Config) (int64, error) {
	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
        INSERT INTO sys_sequences (key, current_val)
        VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
        RETURNING current_val
	`, cfg.Sequence, cfg.Start).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached serves numbers from memory, reserving a new range when exhausted.
func (s *Service) nextCached(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[cfg.Sequence]
	if !exists {
		rng = &cachedRange{}
		s.ranges[cfg.Sequence] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		// A fresh row covers Start..Start+size-1; an existing one advances by size.
		var newMax int64
		err := s.querier(ctx).QueryRow(ctx, `
            INSERT INTO sys_sequences (key, current_val)
            VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $3
            RETURNING current_val
		`, cfg.Sequence, cfg.Start+size-1, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

var _ corenumerator.Generator = (*Service)(nil)
