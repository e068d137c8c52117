package services

import (
	"sync"
	"time"

	"github.com/clearledger/backend/internal/config"
)

// Breaker states.
const (
	BreakerClosed   = "CLOSED"
	BreakerOpen     = "OPEN"
	BreakerHalfOpen = "HALF_OPEN"
)

// CircuitBreaker tracks the shared health of one payment-processing
// channel. All state moves under a single mutex; callers must pair every
// granted Allow with exactly one RecordSuccess, RecordFailure, or
// RecordCancellation.
type CircuitBreaker struct {
	mu sync.Mutex

	state           string
	failureCount    int
	lastFailureTime time.Time
	nextRetryTime   time.Time

	threshold       int
	baseCooldown    time.Duration
	maxCooldown     time.Duration
	currentCooldown time.Duration

	// trialInFlight guards the half-open probe: only the first caller
	// through gets the trial, concurrent callers see the breaker as open.
	trialInFlight bool

	now func() time.Time
}

// BreakerStatus is a read-only snapshot for dashboards.
type BreakerStatus struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	NextRetryTime   time.Time `json:"next_retry_time,omitempty"`
}

func NewCircuitBreaker(cfg *config.BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:           BreakerClosed,
		threshold:       cfg.FailureThreshold,
		baseCooldown:    cfg.Cooldown,
		maxCooldown:     cfg.MaxCooldown,
		currentCooldown: cfg.Cooldown,
		now:             time.Now,
	}
}

// Allow reports whether a real gateway call may be made right now.
// While open it short-circuits until the cooldown elapses, at which
// point the next caller is granted the single half-open trial.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Before(cb.nextRetryTime) {
			return false
		}
		cb.state = BreakerHalfOpen
		cb.trialInFlight = true
		return true
	case BreakerHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess resets the breaker after a successful gateway call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = BreakerClosed
	cb.currentCooldown = cb.baseCooldown
	cb.trialInFlight = false
}

// RecordFailure counts a failed gateway call. Trips to open at the
// threshold; a failed half-open trial re-opens with a doubled cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailureTime = now

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.threshold {
			cb.state = BreakerOpen
			cb.nextRetryTime = now.Add(cb.currentCooldown)
		}
	case BreakerHalfOpen:
		cb.failureCount++
		cb.state = BreakerOpen
		cb.trialInFlight = false
		cb.currentCooldown = cb.currentCooldown * 2
		if cb.currentCooldown > cb.maxCooldown {
			cb.currentCooldown = cb.maxCooldown
		}
		cb.nextRetryTime = now.Add(cb.currentCooldown)
	case BreakerOpen:
		// Late report from a call that started before the trip.
		cb.failureCount++
	}
}

// RecordCancellation releases a granted trial without counting the call
// either way. Used when the caller's context ends mid-flight and the
// cancellation policy says cancellations are not failures.
func (cb *CircuitBreaker) RecordCancellation() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		// The trial produced no verdict; fall back to open and let the
		// existing cooldown schedule the next probe.
		cb.state = BreakerOpen
		cb.trialInFlight = false
		cb.nextRetryTime = cb.now().Add(cb.currentCooldown)
	}
}

// Status returns a point-in-time snapshot for display.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStatus{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
		NextRetryTime:   cb.nextRetryTime,
	}
}
