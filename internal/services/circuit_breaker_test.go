package services

import (
	"testing"
	"time"

	"github.com/clearledger/backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func testBreakerConfig() *config.BreakerConfig {
	return &config.BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
	}
}

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb := NewCircuitBreaker(testBreakerConfig())
	current := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }
	return cb, &current
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, BreakerClosed, cb.Status().State)
	}

	assert.True(t, cb.Allow())
	cb.RecordFailure()

	status := cb.Status()
	assert.Equal(t, BreakerOpen, status.State)
	assert.Equal(t, 5, status.FailureCount)
	assert.False(t, status.NextRetryTime.IsZero())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, 4, cb.Status().FailureCount)

	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Status().FailureCount)
	assert.Equal(t, BreakerClosed, cb.Status().State)

	// The streak restarts; four more failures still do not trip it.
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, cb.Status().State)
}

func TestCircuitBreaker_OpenShortCircuitsUntilCooldown(t *testing.T) {
	cb, current := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, BreakerOpen, cb.Status().State)

	assert.False(t, cb.Allow())
	*current = current.Add(29 * time.Second)
	assert.False(t, cb.Allow())

	// Cooldown elapsed: the next probe is the single half-open trial.
	*current = current.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerHalfOpen, cb.Status().State)
}

func TestCircuitBreaker_HalfOpenSingleTrial(t *testing.T) {
	cb, current := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*current = current.Add(31 * time.Second)

	assert.True(t, cb.Allow(), "first caller gets the trial")
	assert.False(t, cb.Allow(), "concurrent caller treated as open")
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.Status().State)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_FailedTrialDoublesCooldown(t *testing.T) {
	cb, current := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*current = current.Add(31 * time.Second)
	assert.True(t, cb.Allow())
	cb.RecordFailure()

	status := cb.Status()
	assert.Equal(t, BreakerOpen, status.State)
	assert.Equal(t, current.Add(60*time.Second), status.NextRetryTime)

	// Still short-circuited after the original 30s would have elapsed.
	*current = current.Add(45 * time.Second)
	assert.False(t, cb.Allow())

	*current = current.Add(20 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_CooldownCappedAtMax(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Cooldown = 5 * time.Minute
	cfg.MaxCooldown = 8 * time.Minute
	cb := NewCircuitBreaker(cfg)
	current := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	current = current.Add(6 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, current.Add(8*time.Minute), cb.Status().NextRetryTime)
}

func TestCircuitBreaker_CancellationReleasesTrialWithoutVerdict(t *testing.T) {
	cb, current := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	failures := cb.Status().FailureCount
	*current = current.Add(31 * time.Second)
	assert.True(t, cb.Allow())

	cb.RecordCancellation()

	status := cb.Status()
	assert.Equal(t, BreakerOpen, status.State)
	assert.Equal(t, failures, status.FailureCount, "cancellation is not a failure")

	// A later probe is still possible once the cooldown passes again.
	*current = current.Add(31 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_CancellationWhileClosedIsNoop(t *testing.T) {
	cb, _ := newTestBreaker(t)

	cb.RecordFailure()
	cb.RecordCancellation()

	status := cb.Status()
	assert.Equal(t, BreakerClosed, status.State)
	assert.Equal(t, 1, status.FailureCount)
}
