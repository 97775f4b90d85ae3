package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (JobStats, error) {
		if calls.Add(1) < 3 {
			return nil, errBoom
		}
		return JobStats{"created": 2}, nil
	}

	stats, err := WithRetry(fn, 3, time.Millisecond)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobStats{"created": 2}, stats)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetryReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (JobStats, error) {
		calls.Add(1)
		return nil, errBoom
	}

	_, err := WithRetry(fn, 2, time.Millisecond)(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "2 attempts")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithRetryDefaultsToOneAttempt(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (JobStats, error) {
		calls.Add(1)
		return nil, errBoom
	}
	_, err := WithRetry(fn, 0, time.Hour)(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetryStopsWaitingWhenCancelled(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (JobStats, error) {
		calls.Add(1)
		return nil, errBoom
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := WithRetry(fn, 5, time.Hour)(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithTimeoutReturnsErrTimeout(t *testing.T) {
	fn := func(ctx context.Context) (JobStats, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return JobStats{"late": 1}, nil
	}

	start := time.Now()
	stats, err := WithTimeout(fn, 20*time.Millisecond)(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, stats)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "the race does not wait for the job")
}

func TestTimeoutCoversTheWholeRetryLoop(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (JobStats, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		return nil, errBoom
	}

	_, err := WithTimeout(WithRetry(fn, 3, 0), 50*time.Millisecond)(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, calls.Load(), int32(3))
}

func TestExecutorForUsesJobPolicy(t *testing.T) {
	e := ExecutorFor(podds.JobPolicy{Attempts: 3, RetryDelay: time.Millisecond, Timeout: time.Second})
	assert.Equal(t, RetryPolicy{Attempts: 3, Delay: time.Millisecond}, e.Retry)
	assert.Equal(t, TimeoutPolicy{Duration: time.Second}, e.Timeout)

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(ctx context.Context) (JobStats, error) {
		calls.Add(1)
		return nil, errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithTimeoutZeroMeansNoCeiling(t *testing.T) {
	fn := func(ctx context.Context) (JobStats, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return JobStats{"ok": 1}, nil
	}
	stats, err := WithTimeout(fn, 0)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats["ok"])
}

func TestWithTimeoutRecoversPanics(t *testing.T) {
	fn := func(ctx context.Context) (JobStats, error) {
		panic("kaboom")
	}

	_, err := WithTimeout(fn, time.Second)(context.Background())
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, pe.Stack, stackOf(err))
	assert.Empty(t, stackOf(errBoom))
}
