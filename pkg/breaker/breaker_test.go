package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_TripsOpenAfterThreshold(t *testing.T) {
	b := New(WithFailureThreshold(3))
	fail := func(context.Context) error { return errBoom }

	for i := 0; i < 3; i++ {
		err := b.Do(context.Background(), fail)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, Open, b.State())

	err := b.Do(context.Background(), fail)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b := New(WithFailureThreshold(1), WithResetTimeout(10*time.Millisecond))
	require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)

	err := b.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := New(WithFailureThreshold(1), WithResetTimeout(10*time.Millisecond))
	require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	time.Sleep(15 * time.Millisecond)

	err := b.Do(context.Background(), func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(WithFailureThreshold(2))
	require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, Closed, b.State(), "single failure after a reset must not trip a threshold-2 breaker")
}

func TestRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUpToMaxThenFails(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2, Jitter: 0, MaxRetries: 2}
	calls := 0
	err := Retry(context.Background(), policy, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestRetry_StopsOnContextCancellation(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Factor: 1, Jitter: 0, MaxRetries: 5}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, policy, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Error(t, err)
	assert.Less(t, calls, 6)
}

func TestBreaker_DoWithRetry_OpenShortCircuits(t *testing.T) {
	b := New(WithFailureThreshold(1))
	policy := RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1, Jitter: 0, MaxRetries: 1}

	calls := 0
	err := b.DoWithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Error(t, err)
	assert.Equal(t, Open, b.State())

	err = b.DoWithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls, "no call should reach fn while breaker is open")
}

func TestCalculateBackoff_CapsAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Factor: 2, Jitter: 0, MaxRetries: 10}
	d := policy.calculateBackoff(10)
	assert.LessOrEqual(t, d, 2*time.Second)
}
