package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := &Breaker{}
	now := time.Now().UTC()

	for i := 0; i < 9; i++ {
		b.RecordFailure(now, 10)
	}
	assert.Equal(t, Closed, b.state)
	assert.Equal(t, 9, b.failureCount)

	b.RecordFailure(now, 10)
	assert.Equal(t, Open, b.state)
}

func TestBreakerCooldownToHalfOpen(t *testing.T) {
	b := &Breaker{}
	now := time.Now().UTC()
	cooldown := 5 * time.Minute

	for i := 0; i < 10; i++ {
		b.RecordFailure(now, 10)
	}
	assert.False(t, b.Allow(now, cooldown))
	assert.False(t, b.Allow(now.Add(cooldown-time.Second), cooldown))

	// Cooldown elapsed: one probe is permitted and state moves to half-open
	assert.True(t, b.Allow(now.Add(cooldown), cooldown))
	assert.Equal(t, HalfOpen, b.state)
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b := &Breaker{state: HalfOpen, failureCount: 10}
	b.RecordSuccess()
	assert.Equal(t, Closed, b.state)
	assert.Equal(t, 0, b.failureCount)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := &Breaker{state: HalfOpen, failureCount: 10}
	b.RecordFailure(time.Now().UTC(), 10)
	assert.Equal(t, Open, b.state)
}

func TestSuccessHoldsZeroFailuresWhenClosed(t *testing.T) {
	b := &Breaker{}
	now := time.Now().UTC()

	b.RecordFailure(now, 10)
	b.RecordFailure(now, 10)
	b.RecordSuccess()
	assert.Equal(t, Closed, b.state)
	assert.Equal(t, 0, b.failureCount)
}

func TestReset(t *testing.T) {
	b := &Breaker{}
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		b.RecordFailure(now, 10)
	}
	assert.Equal(t, Open, b.state)

	b.Reset()
	assert.Equal(t, Closed, b.state)
	assert.Equal(t, 0, b.failureCount)
	assert.True(t, b.Allow(now, time.Minute))
}

func TestRegistryIsolatesWorkers(t *testing.T) {
	r := NewRegistry(10, 5*time.Minute)

	for i := 0; i < 10; i++ {
		r.RecordFailure("w1")
	}
	assert.False(t, r.Allow("w1"))
	assert.True(t, r.Allow("w2"))

	status := r.Status("w1")
	assert.Equal(t, string(Open), status.State)
	assert.Equal(t, 10, status.FailureCount)
	assert.NotNil(t, status.LastFailure)

	assert.Equal(t, 1, r.OpenCount())

	r.Reset("w1")
	assert.True(t, r.Allow("w1"))
	assert.Equal(t, 0, r.OpenCount())
}

func TestRegistryStatusForUnknownWorker(t *testing.T) {
	r := NewRegistry(10, 5*time.Minute)
	status := r.Status("never-seen")
	assert.Equal(t, string(Closed), status.State)
	assert.Equal(t, 0, status.FailureCount)
	assert.Nil(t, status.LastFailure)
}
