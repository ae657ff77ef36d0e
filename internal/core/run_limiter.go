package core

// run_limiter.go bounds the number of live runs.
//
// A run holds a slot from creation until it reaches a terminal status or is
// removed. The limiter is a buffered-channel semaphore; Acquire waits up to
// maxWait for a slot.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxRuns is the default number of live runs.
const DefaultMaxRuns = 20

// DefaultMaxWaitTime is how long Acquire waits for a slot before rejecting.
const DefaultMaxWaitTime = 5 * time.Second

// RunLimiter caps concurrent live runs.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRunLimiter creates a limiter allowing at most maxRuns live runs.
func NewRunLimiter(maxRuns int, maxWait time.Duration) *RunLimiter {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &RunLimiter{
		semaphore: make(chan struct{}, maxRuns),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. Returns ErrTooManyRuns on
// timeout or the context error if ctx ends first.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRuns
	}
}

// Release returns a slot. Must be called once per successful acquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of held slots.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// RunLimiterStatus is a snapshot of the limiter.
type RunLimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	MaxRuns   int `json:"max_runs"`
}

// Status returns the current limiter state for the health endpoint.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return RunLimiterStatus{
		Active:    active,
		Available: cap(l.semaphore) - len(l.semaphore),
		MaxRuns:   cap(l.semaphore),
	}
}
