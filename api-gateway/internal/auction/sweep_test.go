package auction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_FinishesOverdueLotsOnce(t *testing.T) {
	e, rec := newTestEngine(t)
	activeLot(t, e, "S1", 1000, 100)
	activeLot(t, e, "S2", 1000, 100)
	_, err := e.ExtendManually(context.Background(), "S2", time.Hour, t0)
	require.NoError(t, err)
	rec.reset()

	after := t0.Add(time.Hour)
	res, err := e.Sweep(context.Background(), after)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 1, Finished: 1}, res)

	snap, _ := e.Snapshot("S1")
	assert.Equal(t, models.LotStatusFinished, snap.Status)
	assert.Equal(t, models.FinishReasonExpired, snap.FinishReason)
	assert.Equal(t, after, snap.FinishedAt)

	snap, _ = e.Snapshot("S2")
	assert.Equal(t, models.LotStatusActive, snap.Status)

	res, err = e.Sweep(context.Background(), after.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Equal(t, []models.LotEventType{models.EventLotFinished}, rec.types())
}

func TestSweep_IgnoresScheduledLots(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateLot(context.Background(), models.LotDraft{ID: "S3", BidIncrement: 1, AuctionEndTime: t0}, t0.Add(-time.Hour))
	require.NoError(t, err)

	res, err := e.Sweep(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.Candidates)

	snap, _ := e.Snapshot("S3")
	assert.Equal(t, models.LotStatusScheduled, snap.Status)
}

func TestSweep_RechecksExpiryUnderScope(t *testing.T) {
	e, _ := newTestEngine(t)
	activeLot(t, e, "S4", 1000, 100)
	l, err := e.lookup("S4")
	require.NoError(t, err)

	// Simulate a bid that extended the lot after the sweep chose it.
	require.NoError(t, l.scope.acquire(context.Background(), time.Second))
	require.NoError(t, l.extendEndTime(time.Hour, models.ExtensionCauseAntiSniping))
	l.scope.release()

	done, err := e.finishExpired(context.Background(), "S4", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSweep_SkipsBusyLots(t *testing.T) {
	e, _ := newTestEngine(t)
	e.cfg.LockTimeout = 10 * time.Millisecond
	activeLot(t, e, "S5", 1000, 100)

	l, err := e.lookup("S5")
	require.NoError(t, err)
	require.NoError(t, l.scope.acquire(context.Background(), time.Second))

	res, err := e.Sweep(context.Background(), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 1, Skipped: 1}, res)
	l.scope.release()

	res, err = e.Sweep(context.Background(), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finished)
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	var finished atomic.Int32
	e := NewEngine(Config{LockTimeout: time.Second, SweepInterval: 5 * time.Millisecond, SweepConcurrency: 2},
		WithClock(func() time.Time { return t0.Add(48 * time.Hour) }),
		WithNotifier(NotifierFunc(func(_ context.Context, ev models.LotEvent) {
			if ev.Type == models.EventLotFinished {
				finished.Add(1)
			}
		})),
	)
	_, err := e.CreateLot(context.Background(), models.LotDraft{ID: "S6", BidIncrement: 1, AuctionEndTime: t0.Add(time.Hour)}, t0)
	require.NoError(t, err)
	_, err = e.Activate(context.Background(), "S6", t0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunSweeper(ctx) }()

	require.Eventually(t, func() bool { return finished.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, int32(1), finished.Load())
}
