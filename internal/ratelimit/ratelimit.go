// Package ratelimit gates outbound engine calls with a token bucket.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultCapacity is used when the configured capacity is not positive.
const DefaultCapacity = 10

// Limiter is a token bucket with continuous time-based refill. One shared
// instance gates every engine call a coordinator makes, regardless of
// retry depth.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter holding at most capacity tokens, refilled at
// refillPerSecond tokens per second.
func New(capacity int, refillPerSecond float64) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = float64(capacity)
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
	}
}

// Acquire blocks until one token is available or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// AcquireN blocks until n tokens are available or ctx is cancelled.
func (l *Limiter) AcquireN(ctx context.Context, n int) error {
	return l.limiter.WaitN(ctx, n)
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.limiter.Burst()
}

// RefillRate returns the refill rate in tokens per second.
func (l *Limiter) RefillRate() float64 {
	return float64(l.limiter.Limit())
}
