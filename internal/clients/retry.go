package clients

import (
	"context"
	"time"
)

// RetryPolicy configures the operation-level retry wrapped around a client method.
// It sits above the session's transport retry and covers the whole operation,
// e.g. opening the audio file and posting it.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// BackoffFactor is the wait before the first retry; it doubles each attempt
	BackoffFactor time.Duration

	// Sleep waits between attempts; nil uses a timer that honours ctx
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each backoff sleep
	OnRetry func(state RetryState)
}

// RetryState describes an in-progress retried call
type RetryState struct {
	Attempt  int
	LastErr  error
	Schedule []time.Duration
}

// Backoff returns the wait before retry number attempt (zero based): factor * 2^attempt
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BackoffFactor * time.Duration(int64(1)<<uint(attempt))
}

// Retry runs op until it succeeds, fails with a non-transient error, or
// MaxRetries retries are spent. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	state := RetryState{}
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		state.Attempt = attempt + 1
		state.LastErr = err

		if !IsTransient(err) || attempt >= policy.MaxRetries {
			return zero, err
		}

		wait := policy.Backoff(attempt)
		state.Schedule = append(state.Schedule, wait)
		if policy.OnRetry != nil {
			policy.OnRetry(state)
		}

		// A caller that gave up stops further attempts
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
