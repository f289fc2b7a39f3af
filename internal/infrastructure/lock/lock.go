// Package lock serializes periodic jobs across processes with a redis lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"jobcost/pkg/logger"
)

// KeyPrefix namespaces sweep locks.
const KeyPrefix = "jobcost:sweep:"

// Key returns the lock key of a named sweep.
func Key(name string) string {
	return KeyPrefix + name
}

// Runner runs fn only when it holds the lock for name.
type Runner interface {
	// RunExclusive reports false without calling fn when another process
	// holds the lock.
	RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Connect parses url, dials redis and pings it, retrying a few times while
// the server comes up.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	var pingErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			return client, nil
		}
		logger.Warn(ctx, "redis not ready", "attempt", attempt, "error", pingErr)
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	client.Close()
	return nil, fmt.Errorf("ping redis: %w", pingErr)
}

// RedisRunner implements Runner with bsm/redislock.
type RedisRunner struct {
	locker *redislock.Client
}

var _ Runner = (*RedisRunner)(nil)

// NewRedisRunner creates a runner on client.
func NewRedisRunner(client *redis.Client) *RedisRunner {
	return &RedisRunner{locker: redislock.New(client)}
}

func (r *RedisRunner) RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	l, err := r.locker.Obtain(ctx, Key(name), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Debug(ctx, "sweep lock held elsewhere", "lock", Key(name))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain lock %s: %w", Key(name), err)
	}
	defer func() {
		// The run may outlive ttl; a lost lock is not an error of the run.
		if err := l.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release sweep lock", "lock", Key(name), "error", err)
		}
	}()

	return true, fn(ctx)
}

// LocalRunner runs every call. It is used when no redis is configured and
// only one worker runs.
type LocalRunner struct{}

var _ Runner = LocalRunner{}

func (LocalRunner) RunExclusive(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) (bool, error) {
	return true, fn(ctx)
}
