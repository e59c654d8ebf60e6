package retrybackoff

import (
	"context"
	"errors"
	"fmt"
)

// ErrAttemptsExhausted is returned when every attempt of a retry loop fails.
// The caller can unwrap it to inspect the last underlying error.
var ErrAttemptsExhausted = errors.New("retrybackoff: all attempts exhausted")

// Result carries the outcome of a retry loop, including the number of
// attempts actually made, regardless of whether it ultimately succeeded.
type Result[T any] struct {
	Value     T
	Attempts  int
	LastError error
}

// Do runs fn, retrying up to maxAttempts times (1-indexed attempt passed to
// fn) with backoff computed from policy between attempts. It stops early if
// ctx is cancelled or fn succeeds. On exhaustion, the returned error wraps
// both ErrAttemptsExhausted and the last underlying error.
func Do[T any](ctx context.Context, policy Policy, maxAttempts int, fn func(attempt int) (T, error)) (Result[T], error) {
	var (
		zero     T
		lastErr  error
		attempts int
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Value: zero, Attempts: attempts, LastError: err}, err
		}

		attempts = attempt
		value, err := fn(attempt)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempts, LastError: nil}, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			if sleepErr := SleepWithPolicy(ctx, policy, attempt); sleepErr != nil {
				return Result[T]{Value: zero, Attempts: attempts, LastError: lastErr}, sleepErr
			}
		}
	}

	return Result[T]{Value: zero, Attempts: attempts, LastError: lastErr},
		fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
}

// DoSimple runs fn under the default LLM retry policy with maxAttempts tries.
func DoSimple[T any](ctx context.Context, maxAttempts int, fn func(attempt int) (T, error)) (T, error) {
	result, err := Do(ctx, LLMPolicy(), maxAttempts, fn)
	return result.Value, err
}
