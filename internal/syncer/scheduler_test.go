package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu    sync.Mutex
	calls []PassOptions
}

func (r *countingRunner) RunPass(_ context.Context, opts PassOptions) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	return &Report{Full: opts.Full}, nil
}

func (r *countingRunner) snapshot() []PassOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PassOptions(nil), r.calls...)
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestScheduler_PassOnStartWhenOnline(t *testing.T) {
	r := &countingRunner{}
	var reports atomic.Int32
	s := NewScheduler(r, ConnectivityFunc(func(context.Context) bool { return true }),
		WithInterval(0),
		WithProbeInterval(time.Hour),
		WithFullOnStart(true),
		WithOnPass(func(*Report, error) { reports.Add(1) }),
	)
	startScheduler(t, s)

	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.snapshot()[0].Full)
	require.Eventually(t, func() bool { return reports.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ReconnectTriggersPass(t *testing.T) {
	r := &countingRunner{}
	var online atomic.Bool
	s := NewScheduler(r, ConnectivityFunc(func(context.Context) bool { return online.Load() }),
		WithInterval(0),
		WithProbeInterval(5*time.Millisecond),
	)
	startScheduler(t, s)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, r.snapshot(), "no pass while offline")

	online.Store(true)
	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	// Staying online does not trigger further passes without an interval.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, r.snapshot(), 1)
}

func TestScheduler_Trigger(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, ConnectivityFunc(func(context.Context) bool { return false }),
		WithInterval(0),
		WithProbeInterval(time.Hour),
	)
	startScheduler(t, s)

	s.Trigger(PassOptions{Full: true})
	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.snapshot()[0].Full)
}

func TestScheduler_Interval(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, ConnectivityFunc(func(context.Context) bool { return true }),
		WithInterval(10*time.Millisecond),
		WithProbeInterval(time.Hour),
	)
	startScheduler(t, s)

	require.Eventually(t, func() bool { return len(r.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
}
