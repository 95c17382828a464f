// Package retry provides the bounded retry policy wrapped around every remote call.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoAttempts is returned when the operation was never invoked because the
// context was already done.
var ErrNoAttempts = errors.New("retry: no attempt was made")

// Sleeper pauses between attempts. Implementations must return early with the
// context error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// BackoffFunc returns the pause taken after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// Policy bounds how many times an operation is executed and how long to wait
// between executions. The zero value runs the operation exactly once.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt; the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// Backoff computes the pause after a failed attempt. Defaults to Linear(0).
	Backoff BackoffFunc
	// Sleep defaults to a timer-based sleep that honors ctx.
	Sleep Sleeper
}

// ExhaustedError is returned once every attempt failed. It unwraps to the last
// observed error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Linear waits base × attempt after each failure: base, 2·base, 3·base...
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if base <= 0 || attempt <= 0 {
			return 0
		}
		return base * time.Duration(attempt)
	}
}

// Exponential doubles the pause after each failure: base, 2·base, 4·base...
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if base <= 0 || attempt <= 0 {
			return 0
		}
		if attempt > 16 {
			attempt = 16
		}
		return base << (attempt - 1)
	}
}

// NewExponential builds the policy used for buffered AWS writes.
func NewExponential(maxRetries int, base time.Duration) Policy {
	p := NewLinear(maxRetries, base)
	p.Backoff = Exponential(base)
	return p
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth repeating. Do stops at once and returns
// err itself instead of an ExhaustedError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// NewLinear builds the policy used for remote reads: maxRetries retries with
// a base × attempt pause.
func NewLinear(maxRetries int, base time.Duration) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{
		MaxRetries: maxRetries,
		Backoff:    Linear(base),
		Sleep:      SleepContext,
	}
}

// Attempts is the total number of executions the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds or the policy is exhausted. The operation must be
// safe to repeat; a failed attempt is never compensated.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	backoff := p.Backoff
	if backoff == nil {
		backoff = Linear(0)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	attempts := p.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, fmt.Errorf("%w: %w", ErrNoAttempts, err)
			}
			return zero, &ExhaustedError{Attempts: attempt - 1, Err: lastErr}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return zero, permanent.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return zero, &ExhaustedError{Attempts: attempt, Err: lastErr}
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}
