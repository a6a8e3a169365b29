package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.Allow())

	assert.True(t, cb.RecordFailure(), "third failure opens the circuit")
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	// already open: no second open transition
	assert.False(t, cb.RecordFailure())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, 10*time.Second)
	cb.now = func() time.Time { return now }

	for range 3 {
		cb.RecordFailure()
	}
	assert.False(t, cb.Allow())

	t.Run("a failed trial reopens at once", func(t *testing.T) {
		now = now.Add(11 * time.Second)
		assert.True(t, cb.Allow())
		assert.False(t, cb.IsOpen())

		assert.True(t, cb.RecordFailure())
		assert.True(t, cb.IsOpen())
		assert.False(t, cb.Allow())
	})

	t.Run("a successful trial closes", func(t *testing.T) {
		now = now.Add(11 * time.Second)
		assert.True(t, cb.Allow())
		cb.RecordSuccess()

		assert.False(t, cb.RecordFailure(), "closed again, threshold applies")
		assert.True(t, cb.Allow())
	})
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, time.Minute, cb.cooldown)
	assert.Equal(t, stateClosed, cb.state)
}
