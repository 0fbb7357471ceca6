package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ikoruk/show-seat-booking/internal/config"
)

type countingReaper struct {
	calls atomic.Int32
	err   error
}

func (r *countingReaper) ReapExpired(ctx context.Context) (int, error) {
	r.calls.Add(1)
	return 2, r.err
}

type fakeCoord struct {
	allow    atomic.Bool
	err      error // set before Start
	acquires atomic.Int32
	releases atomic.Int32
}

func (f *fakeCoord) TryAcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	f.acquires.Add(1)
	return f.allow.Load(), f.err
}

func (f *fakeCoord) ReleaseSweepLock(ctx context.Context) error {
	f.releases.Add(1)
	return nil
}

func testCfg() config.ReservationConfig {
	return config.ReservationConfig{
		HoldWindow:    10 * time.Minute,
		SweepInterval: 5 * time.Millisecond,
		SweepLockTTL:  time.Minute,
		SweepBatch:    100,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSweeperTicksInvokeReaper(t *testing.T) {
	reaper := &countingReaper{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(reaper, nil, testCfg()).Start(ctx)

	waitFor(t, func() bool { return reaper.calls.Load() >= 3 })
}

func TestSweeperSkipsTickWhenLockHeldElsewhere(t *testing.T) {
	reaper := &countingReaper{}
	coord := &fakeCoord{} // allow stays false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(reaper, coord, testCfg()).Start(ctx)

	waitFor(t, func() bool { return coord.acquires.Load() >= 3 })
	assert.Zero(t, reaper.calls.Load())
	assert.Zero(t, coord.releases.Load())
}

func TestSweeperReleasesLockAfterSweep(t *testing.T) {
	reaper := &countingReaper{}
	coord := &fakeCoord{}
	coord.allow.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(reaper, coord, testCfg()).Start(ctx)

	waitFor(t, func() bool { return coord.releases.Load() >= 2 })
	assert.GreaterOrEqual(t, reaper.calls.Load(), coord.releases.Load())
}

func TestSweeperSkipsTickOnCoordinatorError(t *testing.T) {
	reaper := &countingReaper{}
	coord := &fakeCoord{err: errors.New("redis: connection refused")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(reaper, coord, testCfg()).Start(ctx)

	waitFor(t, func() bool { return coord.acquires.Load() >= 3 })
	assert.Zero(t, reaper.calls.Load(), "must not sweep without the lock")
	assert.Zero(t, coord.releases.Load())
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	reaper := &countingReaper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		New(reaper, nil, testCfg()).Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return reaper.calls.Load() >= 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperSurvivesReaperErrors(t *testing.T) {
	reaper := &countingReaper{err: errors.New("db offline")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(reaper, nil, testCfg()).Start(ctx)

	waitFor(t, func() bool { return reaper.calls.Load() >= 3 })
}
