package retry

import (
	"context"
	"testing"
	"time"

	"whatsdata/internal/errors"

	"github.com/stretchr/testify/assert"
)

func noSleep(b *Backoff) *Backoff {
	b.sleep = func(context.Context, time.Duration) error { return nil }
	return b
}

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	assert.Equal(t, 100*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 5*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.Multiplier)
	assert.Equal(t, 5, config.MaxAttempts)
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	b := noSleep(NewBackoff(DefaultBackoffConfig()))

	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_RetriesStorageErrors(t *testing.T) {
	b := noSleep(NewBackoff(BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 4}))

	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.NewStorageError("mkdir", "output", assert.AnError)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBackoff_StopsOnPermanentError(t *testing.T) {
	b := noSleep(NewBackoff(DefaultBackoffConfig()))

	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		return errors.NewInputError("bad")
	})

	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, 1, attempts)
}

func TestBackoff_ExhaustsAttempts(t *testing.T) {
	b := noSleep(NewBackoff(BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 3}))

	attempts := 0
	err := b.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return assert.AnError
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, attempts)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2, MaxAttempts: 3})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := b.RetryWithPredicate(ctx, func() error {
		attempts++
		cancel()
		return assert.AnError
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 5})

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10))
}

func TestBackoff_DelayWithJitterStaysInBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 5, Jitter: true})

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
