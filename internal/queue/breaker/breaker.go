package breaker

import (
	"sync"
	"time"

	"github.com/atlashq/atlas/internal/queue/types"
)

// State of a circuit breaker.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Breaker is the failure-tripped gate for a single worker identity.
// Transitions:
//
//	closed --(failures >= threshold)--> open
//	open --(cooldown elapsed)--> half_open
//	half_open --(success)--> closed
//	half_open --(failure)--> open
//
// The zero value is a closed breaker with no recorded failures.
type Breaker struct {
	state        State
	failureCount int
	lastFailure  time.Time
}

func (b *Breaker) normalize() {
	if b.state == "" {
		b.state = Closed
	}
}

// Allow reports whether a dequeue for this worker is permitted at t.
// An open breaker whose cooldown has elapsed transitions to half-open
// and permits one probe request.
func (b *Breaker) Allow(t time.Time, cooldown time.Duration) bool {
	b.normalize()
	if b.state == Open {
		if !b.lastFailure.IsZero() && t.Sub(b.lastFailure) >= cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordFailure registers one failed task attempt at t. A half-open
// breaker re-opens immediately; a closed breaker opens once the failure
// count reaches threshold.
func (b *Breaker) RecordFailure(t time.Time, threshold int) {
	b.normalize()
	b.failureCount++
	b.lastFailure = t

	if b.state == HalfOpen {
		b.state = Open
		return
	}
	if b.failureCount >= threshold {
		b.state = Open
	}
}

// RecordSuccess clears the failure count. A half-open breaker closes.
func (b *Breaker) RecordSuccess() {
	b.normalize()
	if b.state == HalfOpen {
		b.state = Closed
	}
	if b.state == Closed {
		b.failureCount = 0
	}
}

// Reset forces the breaker closed with zero failures (operator override).
func (b *Breaker) Reset() {
	b.state = Closed
	b.failureCount = 0
	b.lastFailure = time.Time{}
}

// Registry holds one breaker per worker identity. All breaker state lives
// in memory; a process restart resets every breaker to closed.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (r *Registry) get(workerID string) *Breaker {
	b, ok := r.breakers[workerID]
	if !ok {
		b = &Breaker{state: Closed}
		r.breakers[workerID] = b
	}
	return b
}

// Allow reports whether the worker may dequeue right now.
func (r *Registry) Allow(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(workerID).Allow(time.Now().UTC(), r.cooldown)
}

// RecordFailure registers a task failure against the worker's breaker.
func (r *Registry) RecordFailure(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(workerID).RecordFailure(time.Now().UTC(), r.threshold)
}

// RecordSuccess registers a task completion for the worker.
func (r *Registry) RecordSuccess(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(workerID).RecordSuccess()
}

// Reset forces the worker's breaker closed (operator action).
func (r *Registry) Reset(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(workerID).Reset()
}

// Status returns the inspection view for one worker.
func (r *Registry) Status(workerID string) types.CircuitBreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(workerID)
	status := types.CircuitBreakerStatus{
		WorkerID:     workerID,
		State:        string(b.state),
		FailureCount: b.failureCount,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		status.LastFailure = &t
	}
	return status
}

// OpenCount returns the number of breakers currently open, for metrics.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, b := range r.breakers {
		if b.state == Open {
			count++
		}
	}
	return count
}
