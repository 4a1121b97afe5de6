package handler

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/dukerupert/cleanround/internal/lifecycle"
)

// conflictRetry is one retry with a fresh read after a lost compare-and-swap.
var conflictRetry = retry.Config{
	MaxAttempts:   2,
	InitialDelay:  5 * time.Millisecond,
	BackoffPolicy: retry.BackoffExponential,
}

type attempt[T any] struct {
	value T
	err   error
}

// withConflictRetry runs fn and repeats it once if it fails with a conflict.
// Every other outcome is returned as-is without retrying.
func withConflictRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastConflict error
	r := retry.New[attempt[T]](conflictRetry)
	res, err := r.Do(ctx, func(ctx context.Context) (attempt[T], error) {
		v, err := fn(ctx)
		if lifecycle.IsConflict(err) {
			lastConflict = err
			return attempt[T]{}, err
		}
		return attempt[T]{value: v, err: err}, nil
	})
	if err != nil {
		var zero T
		if lastConflict != nil {
			return zero, lastConflict
		}
		return zero, err
	}
	return res.value, res.err
}
