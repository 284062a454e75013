package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aaronwang/lot-auction/api-gateway/internal/auction"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSink struct {
	name  string
	fail  bool
	delay time.Duration

	mu     sync.Mutex
	events []models.LotEvent
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) PublishLotEvent(ctx context.Context, event *models.LotEvent) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errors.New("sink unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestService(t *testing.T, sinks ...EventSink) (*AuctionService, *Dispatcher) {
	t.Helper()
	dispatcher := NewDispatcher(discard, sinks...)
	engine := auction.NewEngine(auction.DefaultConfig(),
		auction.WithNotifier(dispatcher),
		auction.WithLogger(discard),
	)
	svc, err := NewAuctionService(engine, discard, 16)
	require.NoError(t, err)
	return svc, dispatcher
}

func openLot(t *testing.T, svc *AuctionService, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateLot(ctx, models.LotDraft{
		ID:            id,
		Vehicle:       models.Vehicle{Plate: "ABC123", Make: "Mazda", Line: "3", Year: 2021},
		StartingPrice: 1000,
		BidIncrement:  100,
	})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, id)
	require.NoError(t, err)
}

func TestDispatcher_FailingSinkDoesNotAffectOthers(t *testing.T) {
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", fail: true}
	svc, dispatcher := newTestService(t, good, bad)

	openLot(t, svc, "L1")
	resp, err := svc.PlaceBid(context.Background(), "L1", &models.BidRequest{BidderID: "ana", Amount: 1100}, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dispatcher.Wait(ctx))

	assert.Equal(t, 3, good.count())
	assert.Equal(t, 0, bad.count())
}

func TestDispatcher_RequestCancellationDoesNotDropEvents(t *testing.T) {
	slow := &fakeSink{name: "slow", delay: 20 * time.Millisecond}
	svc, dispatcher := newTestService(t, slow)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.CreateLot(ctx, models.LotDraft{ID: "L2", BidIncrement: 1})
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return slow.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, dispatcher.Wait(context.Background()))
}

func TestPlaceBid_IdempotencyKeyReplays(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L3")
	ctx := context.Background()
	req := &models.BidRequest{BidderID: "ana", Amount: 1100}

	first, err := svc.PlaceBid(ctx, "L3", req, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.PlaceBid(ctx, "L3", req, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.BidID, second.BidID)

	snap, err := svc.GetLot("L3")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.BidCount)

	_, err = svc.PlaceBid(ctx, "L3", &models.BidRequest{BidderID: "ana", Amount: 5000}, "key-1")
	var verr *auction.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestPlaceBid_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L4")

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.PlaceBid(context.Background(), "L4", &models.BidRequest{BidderID: "bo", Amount: 1200}, "dup")
			if err == nil && resp.Success {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	snap, _ := svc.GetLot("L4")
	assert.Equal(t, 1, snap.BidCount)
}

func TestPlaceBid_RejectionsAreNotCached(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L5")
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, "L5", &models.BidRequest{BidderID: "ana", Amount: 1000}, "k")
	var low *auction.BidTooLowError
	require.True(t, errors.As(err, &low))
	assert.Equal(t, int64(1100), low.Minimum)

	_, err = svc.PlaceBid(ctx, "L5", &models.BidRequest{BidderID: "ana", Amount: 1000}, "k")
	require.True(t, errors.As(err, &low))
}

func TestPlaceBid_ExpectedPricePassedThrough(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L6")
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, "L6", &models.BidRequest{BidderID: "bo", Amount: 2000}, "")
	require.NoError(t, err)

	stale := int64(1000)
	_, err = svc.PlaceBid(ctx, "L6", &models.BidRequest{BidderID: "ana", Amount: 1100, ExpectedPrice: &stale}, "")
	var conflict *auction.ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestAdminOperations(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L7")
	ctx := context.Background()

	before, _ := svc.GetLot("L7")
	snap, err := svc.ExtendTime(ctx, "L7", 30)
	require.NoError(t, err)
	assert.Equal(t, before.AuctionEndTime.Add(30*time.Minute), snap.AuctionEndTime)

	snap, err = svc.SetIncrement(ctx, "L7", 250)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), snap.MinimumBid)

	snap, err = svc.Finish(ctx, "L7")
	require.NoError(t, err)
	assert.Equal(t, models.LotStatusFinished, snap.Status)
	assert.Equal(t, models.FinishReasonAdmin, snap.FinishReason)

	_, err = svc.ExtendTime(ctx, "L7", 5)
	var state *auction.InvalidStateError
	require.True(t, errors.As(err, &state))
}

func TestExtendTime_RejectsUnrepresentableMinutes(t *testing.T) {
	svc, _ := newTestService(t)
	openLot(t, svc, "L8")
	ctx := context.Background()
	before, _ := svc.GetLot("L8")

	for _, minutes := range []int{0, -5, int(maxExtendMinutes) + 1, 1 << 62} {
		_, err := svc.ExtendTime(ctx, "L8", minutes)
		var verr *auction.ValidationError
		require.True(t, errors.As(err, &verr), "minutes=%d", minutes)
		assert.Equal(t, "minutes", verr.Field)
	}

	after, _ := svc.GetLot("L8")
	assert.Equal(t, before.AuctionEndTime, after.AuctionEndTime)
	assert.Equal(t, before.Version, after.Version)

	snap, err := svc.ExtendTime(ctx, "L8", int(maxExtendMinutes))
	require.NoError(t, err)
	assert.Equal(t, before.AuctionEndTime.Add(time.Duration(maxExtendMinutes)*time.Minute), snap.AuctionEndTime)
}

func TestView_ExpiringSoon(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	snap := &models.LotSnapshot{Lot: models.Lot{Status: models.LotStatusActive, AuctionEndTime: now.Add(10 * time.Minute)}}
	view := svc.View(snap)
	assert.True(t, view.ExpiringSoon)
	assert.Equal(t, int64(600), view.TimeRemainingSeconds)

	snap.AuctionEndTime = now.Add(time.Hour)
	assert.False(t, svc.View(snap).ExpiringSoon)

	snap.Status = models.LotStatusFinished
	assert.Equal(t, int64(0), svc.View(snap).TimeRemainingSeconds)
}

type fakeSource struct {
	lots []models.Lot
	bids map[string][]models.Bid
}

func (f *fakeSource) OpenLots(context.Context) ([]models.Lot, error) { return f.lots, nil }

func (f *fakeSource) LotBids(_ context.Context, lotID string) ([]models.Bid, error) {
	return f.bids[lotID], nil
}

func TestRestore_SkipsBrokenLots(t *testing.T) {
	svc, _ := newTestService(t)
	end := time.Now().Add(time.Hour)

	src := &fakeSource{
		lots: []models.Lot{
			{ID: "ok", Status: models.LotStatusActive, StartingPrice: 10, BidIncrement: 1, AuctionEndTime: end, Version: 4},
			{ID: "broken", Status: models.LotStatusActive, StartingPrice: 10, BidIncrement: 0, AuctionEndTime: end},
		},
		bids: map[string][]models.Bid{
			"ok": {{ID: "ok-000001", Seq: 1, LotID: "ok", BidderRef: "ana", Amount: 11}},
		},
	}

	n, err := svc.Restore(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := svc.GetLot("ok")
	require.NoError(t, err)
	assert.Equal(t, int64(11), snap.CurrentPrice)

	_, err = svc.GetLot("broken")
	require.ErrorIs(t, err, auction.ErrLotNotFound)
}
