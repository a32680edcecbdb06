package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRetrier(p Policy, rep *Reporter) (*Retrier, *[]time.Duration) {
	r := New(p, rep)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestDo_BackoffSchedule(t *testing.T) {
	r, slept := newTestRetrier(defaultPolicy, nil)

	calls := 0
	err := r.Do(context.Background(), "orders.get", func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	r, slept := newTestRetrier(defaultPolicy, nil)

	calls := 0
	err := r.Do(context.Background(), "k", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, *slept, 1)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	r, slept := newTestRetrier(defaultPolicy, nil)
	sentinel := errors.New("bad input")

	calls := 0
	err := r.Do(context.Background(), "k", func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	r, _ := newTestRetrier(Policy{Attempts: 2, BaseDelay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}, nil)

	calls := 0
	err := r.Do(context.Background(), "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_ParentCancelled(t *testing.T) {
	r, _ := newTestRetrier(defaultPolicy, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, "k", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	r, _ := newTestRetrier(defaultPolicy, nil)

	v, err := Value(context.Background(), r, "k", func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestReporter_DebouncesPerKey(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rep := NewReporter(zap.New(core), time.Hour)
	r, _ := newTestRetrier(Policy{Attempts: 1}, rep)

	fail := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < 3; i++ {
		_ = r.Do(context.Background(), "orders.get", fail)
	}
	_ = r.Do(context.Background(), "users.scan", fail)

	assert.Equal(t, 2, logs.Len())
}

func TestNew_ZeroPolicyUsesDefaults(t *testing.T) {
	r, slept := newTestRetrier(Policy{}, nil)

	calls := 0
	_ = r.Do(context.Background(), "k", func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestReporter_OwnedByInstance(t *testing.T) {
	coreA, logsA := observer.New(zap.WarnLevel)
	coreB, logsB := observer.New(zap.WarnLevel)
	a := NewReporter(zap.New(coreA), time.Hour)
	b := NewReporter(zap.New(coreB), time.Hour)

	a.Report("k", errors.New("x"))
	b.Report("k", errors.New("x"))

	assert.Equal(t, 1, logsA.Len())
	assert.Equal(t, 1, logsB.Len())
}
