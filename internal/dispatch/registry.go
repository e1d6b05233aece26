package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// Registry hands out per-job wakeup signals. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	signals map[uuid.UUID]*Signal
}

// NewRegistry creates an empty signal registry.
func NewRegistry() *Registry {
	return &Registry{signals: make(map[uuid.UUID]*Signal)}
}

// Signal returns the wakeup signal for jobID, creating it on first use.
// Concurrent callers for the same job always observe the same signal.
func (r *Registry) Signal(jobID uuid.UUID) *Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.signals[jobID]
	if !ok {
		sig = newSignal()
		r.signals[jobID] = sig
	}
	return sig
}

// Notify sets the job's wakeup signal, creating it if no waiter has
// subscribed yet. The signal stays set until a waiter clears it, so a
// notify racing ahead of the first Wait is never lost.
func (r *Registry) Notify(jobID uuid.UUID) {
	r.Signal(jobID).Set()
}

// Forget releases any remaining waiters and drops the job's signal. Called
// on job deletion so the registry does not grow with dead entries.
func (r *Registry) Forget(jobID uuid.UUID) {
	r.mu.Lock()
	sig, ok := r.signals[jobID]
	delete(r.signals, jobID)
	r.mu.Unlock()
	if ok {
		sig.Set()
	}
}

// Size returns the number of live signals, for health reporting.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}
