// Package jitter provides a goroutine-safe random source for delays and picks.
package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Window is a closed [Min, Max] duration range.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Source wraps math/rand behind a mutex so executors can share one seed.
type Source struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Source. A zero seed picks one from the clock.
func New(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{rnd: rand.New(rand.NewSource(seed))}
}

// Between samples uniformly from w. An empty or inverted window yields w.Min.
func (s *Source) Between(w Window) time.Duration {
	if w.Min < 0 {
		w.Min = 0
	}
	if s == nil || w.Max <= w.Min {
		return w.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return w.Min + time.Duration(s.rnd.Int63n(int64(w.Max-w.Min)+1))
}

// Intn returns a value in [0, n). n must be > 0.
func (s *Source) Intn(n int) int {
	if s == nil || n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
