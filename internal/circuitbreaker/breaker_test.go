package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Calls are shed without invoking the function.
	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: time.Minute})

	require.Error(t, cb.Call(func() error { return errBoom }))
	require.NoError(t, cb.Call(func() error { return nil }))
	require.Error(t, cb.Call(func() error { return errBoom }))

	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures must not open the circuit")
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 5 * time.Millisecond})

	require.Error(t, cb.Call(func() error { return errBoom }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)

	t.Run("failed probe reopens", func(t *testing.T) {
		require.Error(t, cb.Call(func() error { return errBoom }))
		assert.Equal(t, StateOpen, cb.State())
	})

	time.Sleep(10 * time.Millisecond)

	t.Run("successful probe closes", func(t *testing.T) {
		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_ManualReset(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Hour})

	require.Error(t, cb.Call(func() error { return errBoom }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}
