package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/skillradar/internal/pipeline"
	"github.com/elonfeng/skillradar/pkg/trend"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (*pipeline.Result, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Result{RunID: "test", Trends: &trend.Result{}}, nil
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(&countingRunner{}, "every day", false, nil)
	assert.ErrorContains(t, err, "parse schedule")
}

func TestNext(t *testing.T) {
	s, err := New(&countingRunner{}, "0 1 * * *", false, nil)
	require.NoError(t, err)

	from := time.Date(2026, 6, 10, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 11, 1, 0, 0, 0, time.UTC), s.Next(from))

	// Local times are evaluated in UTC.
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC),
		s.Next(time.Date(2026, 6, 10, 9, 30, 0, 0, tokyo)))
}

func TestRunOnStartAndStop(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r, "0 1 * * *", true, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCycleToleratesFailures(t *testing.T) {
	for _, err := range []error{pipeline.ErrRunning, errors.New("fetch leaderboard: timeout")} {
		r := &countingRunner{err: err}
		s, nerr := New(r, "@hourly", false, nil)
		require.NoError(t, nerr)

		s.cycle(context.Background())
		assert.EqualValues(t, 1, r.calls.Load())
	}
}
