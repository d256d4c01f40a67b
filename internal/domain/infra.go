package domain

import (
	"context"
	"time"
)

// LockManager provides distributed mutual exclusion, used to keep the
// archiver's cron tick single-flight across more than one running instance.
type LockManager interface {
	// Acquire blocks for at most the lock's own contention, returning
	// ErrLockHeld immediately if another holder has it. The returned func
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls to a shared downstream (the LLM proxy, the
// brokerage gateway) so one busy task can't starve the others.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
