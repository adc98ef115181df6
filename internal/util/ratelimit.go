package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls evenly at perMinute per minute. A call that finds
// the limiter idle proceeds at once; later calls queue for the next free slot.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time // earliest start of the next unclaimed slot
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if perMinute > 0 {
		rl.interval = time.Minute / time.Duration(perMinute)
	}
	return rl
}

// reserve claims the next slot at or after now and returns how long the
// caller has to wait for it.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.next.Before(now) {
		rl.next = now
	}
	wait := rl.next.Sub(now)
	rl.next = rl.next.Add(rl.interval)
	return wait
}

// release hands back a slot claimed by a caller that gave up waiting.
func (rl *RateLimiter) release() {
	rl.mu.Lock()
	rl.next = rl.next.Add(-rl.interval)
	rl.mu.Unlock()
}

// Wait blocks until the caller's slot arrives or ctx ends. A slot that would
// start after ctx's deadline is given back immediately.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil || rl.interval <= 0 {
		return err
	}
	now := time.Now()
	wait := rl.reserve(now)
	if wait <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && now.Add(wait).After(deadline) {
		rl.release()
		return context.DeadlineExceeded
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rl.release()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
