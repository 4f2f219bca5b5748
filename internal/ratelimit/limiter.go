// Package ratelimit provides a process-wide token bucket gating outbound
// provider calls. A single Limiter is shared by every chain task.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket of capacity perSec, refilled continuously from
// wall-clock time. Waiters are serialized through the mutex by reserving a
// token before sleeping, so effective throughput cannot exceed the nominal
// rate under contention.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	last     time.Time
}

// NewLimiter creates a limiter allowing perSec acquisitions per second with
// a burst of perSec. The bucket starts full.
func NewLimiter(perSec int) *Limiter {
	if perSec < 1 {
		perSec = 1
	}
	return &Limiter{
		capacity: float64(perSec),
		tokens:   float64(perSec),
		last:     time.Now(),
	}
}

// Acquire blocks until one unit of capacity is available or ctx is done.
// It never fails for any reason other than context cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.tokens += elapsed * l.capacity
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	// Reserve the next accruing token: tokens go negative, so later
	// waiters compute strictly longer waits and acquisitions stay paced.
	wait := time.Duration((1 - l.tokens) / l.capacity * float64(time.Second))
	l.tokens--
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.release()
		return ctx.Err()
	}
}

// release returns a reserved token after a cancelled wait.
func (l *Limiter) release() {
	l.mu.Lock()
	l.tokens++
	l.mu.Unlock()
}
