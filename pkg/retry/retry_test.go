package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("database is locked")

func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := wait
	wait = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { wait = orig })
	return &delays
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	delays := noWait(t)
	attempts := 0

	err := Do(context.Background(), Config{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *delays)
}

func TestDo_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	noWait(t)
	attempts := 0

	err := Do(context.Background(), Config{MaxAttempts: 2}, func() error {
		attempts++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 2, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	noWait(t)
	attempts := 0
	notFound := errors.New("not found")

	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return Permanent(notFound)
	})

	assert.Equal(t, notFound, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryableErrorsFilter(t *testing.T) {
	noWait(t)
	attempts := 0
	other := errors.New("constraint failed")

	err := Do(context.Background(), Config{MaxAttempts: 5, RetryableErrors: []error{errBusy}}, func() error {
		attempts++
		return other
	})

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	noWait(t)
	calls := 0

	got, err := DoWithResult(context.Background(), PersistenceConfig(nil), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errBusy
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, DefaultConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
