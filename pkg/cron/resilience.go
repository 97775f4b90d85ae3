// Package cron runs the maintenance jobs that keep fixtures, statistics and
// predictions current, with retries, timeouts and an audit trail.
package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

// ErrTimeout is returned when a job outlives its ceiling
var ErrTimeout = errors.New("job timed out")

// JobStats are the counters a job reports, e.g. {"created": 3, "failed": 1}
type JobStats map[string]int

// JobFunc is a unit of scheduled work
type JobFunc func(ctx context.Context) (JobStats, error)

// PanicError is a recovered job panic
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// RetryPolicy runs a job up to Attempts times, Delay apart
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// TimeoutPolicy bounds a job's wall time. Zero means unbounded.
type TimeoutPolicy struct {
	Duration time.Duration
}

// Executor applies its policies as timeout(retry(fn)), so the timeout covers
// the whole retry loop rather than each attempt
type Executor struct {
	Retry   RetryPolicy
	Timeout TimeoutPolicy
}

// ExecutorFor builds the executor for a configured job policy
func ExecutorFor(p podds.JobPolicy) Executor {
	return Executor{
		Retry:   RetryPolicy{Attempts: p.Attempts, Delay: p.RetryDelay},
		Timeout: TimeoutPolicy{Duration: p.Timeout},
	}
}

// Execute runs fn under the executor's policies
func (e Executor) Execute(ctx context.Context, fn JobFunc) (JobStats, error) {
	return WithTimeout(WithRetry(fn, e.Retry.Attempts, e.Retry.Delay), e.Timeout.Duration)(ctx)
}

// WithRetry runs fn up to attempts times, sleeping delay between attempts.
// The last error is returned once attempts are exhausted.
func WithRetry(fn JobFunc, attempts int, delay time.Duration) JobFunc {
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) (JobStats, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			stats, err := fn(ctx)
			if err == nil {
				return stats, nil
			}
			lastErr = err
			if attempt == attempts {
				break
			}
			logger.Warn("Job attempt failed, retrying", attempt, attempts, err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry abandoned after attempt %d: %w", attempt, errors.Join(lastErr, ctx.Err()))
			case <-time.After(delay):
			}
		}
		return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
}

// WithTimeout races fn against a timer. On timeout fn's context is cancelled
// and ErrTimeout is returned without waiting for fn to notice.
func WithTimeout(fn JobFunc, timeout time.Duration) JobFunc {
	return func(ctx context.Context) (JobStats, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		type result struct {
			stats JobStats
			err   error
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: &PanicError{Value: r, Stack: string(debug.Stack())}}
				}
			}()
			stats, err := fn(ctx)
			done <- result{stats: stats, err: err}
		}()

		select {
		case r := <-done:
			return r.stats, r.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return nil, ctx.Err()
		}
	}
}
