package retry

import (
	"context"
	"math/rand"
	"time"

	"agromind/internal/models"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	// MaxAttempts of zero or less retries until the context ends.
	MaxAttempts int  `json:"max_attempts"`
	Jitter      bool `json:"jitter"`
}

// FromSettings converts the retry section of the configuration file into a
// doubling, jittered backoff
func FromSettings(settings models.RetryConfig) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Duration(settings.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(settings.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  settings.MaxAttempts,
		Jitter:       true,
	}
}

// NotifyFunc observes a failed attempt before the backoff waits
type NotifyFunc func(err error, attempt int, delay time.Duration)

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config BackoffConfig
	notify NotifyFunc
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	return &Backoff{config: config}
}

// WithNotify registers fn to be called after every retried failure
func (b *Backoff) WithNotify(fn NotifyFunc) *Backoff {
	b.notify = fn
	return b
}

// Retry executes the operation until it succeeds or attempts run out
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate retries only errors accepted by isRetryable; any other
// error is returned immediately.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; b.config.MaxAttempts <= 0 || attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == b.config.MaxAttempts {
			break
		}

		delay := b.Delay(attempt)
		if b.notify != nil {
			b.notify(err, attempt, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Wait sleeps for the delay of the given attempt or until ctx is done.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	return sleep(ctx, b.Delay(attempt))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the delay used after the given (1-based) attempt
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt && delay < float64(b.config.MaxDelay); i++ {
		delay *= b.config.Multiplier
	}

	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// +/-25%
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64() - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}
