package dispatch

import (
	"context"
	"sync"
	"time"
)

// Signal is a resettable wakeup flag shared by one job's waiters and
// notifiers. Set releases every current and future waiter until Clear
// re-arms it. Signals are created through the Registry.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

func newSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal. Idempotent; safe from any goroutine.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear re-arms the signal so waiters block again.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until the signal is set, the timeout elapses, or ctx is done.
// It returns true when the signal fired; false waits are indistinguishable
// from cancellation, so callers check ctx.Err() themselves.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	set := s.set
	ch := s.ch
	s.mu.Unlock()
	if set {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
