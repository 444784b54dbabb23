package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})
	ctx := context.Background()
	boom := errors.New("api down")

	for i := 0; i < 3; i++ {
		assert.Equal(t, CircuitClosed, cb.State())
		require.Error(t, cb.Execute(ctx, failing(boom)))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	// Open circuit rejects without calling fn.
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, eris.Is(err, ErrCircuitOpen))
	assert.False(t, called)
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing(errors.New("x"))))
	require.NoError(t, cb.Execute(ctx, failing(nil)))
	require.Error(t, cb.Execute(ctx, failing(errors.New("x"))))

	// Never two consecutive failures: still closed.
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing(errors.New("x"))))
	assert.Equal(t, CircuitOpen, cb.State())

	// Before the reset timeout: still rejecting.
	err := cb.Execute(ctx, failing(nil))
	assert.True(t, eris.Is(err, ErrCircuitOpen))

	// After the timeout a probe is allowed; success closes the circuit.
	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, failing(nil)))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing(errors.New("x"))))
	now = now.Add(11 * time.Second)

	// Probe fails: straight back to open.
	require.Error(t, cb.Execute(ctx, failing(errors.New("still down"))))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitShouldTripFilter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	ctx := context.Background()

	// Permanent errors pass through without tripping.
	require.Error(t, cb.Execute(ctx, failing(errors.New("bad request"))))
	assert.Equal(t, CircuitClosed, cb.State())

	require.Error(t, cb.Execute(ctx, failing(NewTransientError(errors.New("503"), 503))))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitReset(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing(errors.New("x"))))
	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestExecuteValPreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "posterior", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "posterior", val)
}
