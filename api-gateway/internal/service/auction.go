package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aaronwang/lot-auction/api-gateway/internal/auction"
	"github.com/aaronwang/lot-auction/shared/models"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// ExpiringSoonThreshold marks active lots close to their end on list views
const ExpiringSoonThreshold = 15 * time.Minute

// maxExtendMinutes is the largest manual extension expressible as a time.Duration
const maxExtendMinutes = math.MaxInt64 / int64(time.Minute)

// AuctionService is the transport-facing wrapper around the engine. It
// stamps operations with the current time and makes bid submission
// idempotent per client-supplied key.
type AuctionService struct {
	engine   *auction.Engine
	receipts *lru.Cache // lotID/key -> *cachedReceipt
	inflight singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

type cachedReceipt struct {
	bidderID string
	amount   int64
	response *models.BidResponse
}

// NewAuctionService creates the service. cacheSize bounds the number of
// remembered idempotency keys.
func NewAuctionService(engine *auction.Engine, logger *slog.Logger, cacheSize int) (*AuctionService, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt cache: %w", err)
	}

	return &AuctionService{
		engine:   engine,
		receipts: cache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateLot is the listing workflow entry point
func (s *AuctionService) CreateLot(ctx context.Context, draft models.LotDraft) (*models.LotSnapshot, error) {
	return s.engine.CreateLot(ctx, draft, s.now())
}

// GetLot returns the latest snapshot of a lot
func (s *AuctionService) GetLot(lotID string) (*models.LotSnapshot, error) {
	return s.engine.Snapshot(lotID)
}

// ListLots returns lots with the given status, all lots when empty
func (s *AuctionService) ListLots(status models.LotStatus) []*models.LotSnapshot {
	return s.engine.List(status)
}

// View decorates a snapshot with timing hints for display
func (s *AuctionService) View(snap *models.LotSnapshot) models.LotView {
	now := s.now()
	return models.LotView{
		LotSnapshot:          snap,
		TimeRemainingSeconds: int64(snap.TimeRemaining(now) / time.Second),
		ExpiringSoon:         snap.ExpiringSoon(now, ExpiringSoonThreshold),
	}
}

// PlaceBid submits a bid. When idempotencyKey is set, a retry of the same
// request returns the original response, and concurrent duplicates share a
// single submission. Rejections are not remembered.
func (s *AuctionService) PlaceBid(ctx context.Context, lotID string, req *models.BidRequest, idempotencyKey string) (*models.BidResponse, error) {
	if idempotencyKey == "" {
		return s.placeBid(ctx, lotID, req)
	}

	key := lotID + "/" + idempotencyKey
	if resp, ok, err := s.replay(key, req); ok || err != nil {
		return resp, err
	}

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		if resp, ok, err := s.replay(key, req); ok || err != nil {
			return resp, err
		}
		resp, err := s.placeBid(ctx, lotID, req)
		if err != nil {
			return nil, err
		}
		s.receipts.Add(key, &cachedReceipt{bidderID: req.BidderID, amount: req.Amount, response: resp})
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.BidResponse), nil
}

func (s *AuctionService) replay(key string, req *models.BidRequest) (*models.BidResponse, bool, error) {
	v, ok := s.receipts.Get(key)
	if !ok {
		return nil, false, nil
	}
	cached := v.(*cachedReceipt)
	if cached.bidderID != req.BidderID || cached.amount != req.Amount {
		return nil, false, &auction.ValidationError{
			Field:  "Idempotency-Key",
			Reason: "already used for a different bid",
		}
	}

	resp := *cached.response
	resp.Replayed = true
	return &resp, true, nil
}

func (s *AuctionService) placeBid(ctx context.Context, lotID string, req *models.BidRequest) (*models.BidResponse, error) {
	var opts []auction.BidOption
	if req.ExpectedPrice != nil {
		opts = append(opts, auction.WithExpectedPrice(*req.ExpectedPrice))
	}

	receipt, err := s.engine.SubmitBid(ctx, lotID, req.BidderID, req.Amount, s.now(), opts...)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bid accepted",
		slog.String("lot_id", lotID),
		slog.String("bid_id", receipt.Bid.ID),
		slog.String("bidder_id", receipt.Bid.BidderRef),
		slog.Int64("amount", receipt.Bid.Amount),
		slog.Bool("extended", receipt.Extended),
	)

	message := "Bid placed successfully"
	if receipt.Extended {
		message = "Bid placed successfully, auction extended"
	}
	return &models.BidResponse{
		Success:      true,
		Message:      message,
		BidID:        receipt.Bid.ID,
		LotID:        lotID,
		Amount:       receipt.Bid.Amount,
		CurrentPrice: receipt.CurrentPrice,
		MinimumBid:   receipt.MinimumBid,
		EndTime:      receipt.EndTime,
		Extended:     receipt.Extended,
		IsHighest:    receipt.CurrentPrice == receipt.Bid.Amount,
	}, nil
}

// SetIncrement changes the minimum bid step of a lot
func (s *AuctionService) SetIncrement(ctx context.Context, lotID string, increment int64) (*models.LotSnapshot, error) {
	snap, err := s.engine.SetIncrement(ctx, lotID, increment, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Increment updated", slog.String("lot_id", lotID), slog.Int64("increment", increment))
	return snap, nil
}

// ExtendTime adds minutes to an active lot's end time
func (s *AuctionService) ExtendTime(ctx context.Context, lotID string, minutes int) (*models.LotSnapshot, error) {
	if minutes <= 0 || int64(minutes) > maxExtendMinutes {
		return nil, &auction.ValidationError{
			Field:  "minutes",
			Reason: fmt.Sprintf("must be between 1 and %d", maxExtendMinutes),
		}
	}
	snap, err := s.engine.ExtendManually(ctx, lotID, time.Duration(minutes)*time.Minute, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Lot extended manually",
		slog.String("lot_id", lotID),
		slog.Int("minutes", minutes),
		slog.Time("end_time", snap.AuctionEndTime),
	)
	return snap, nil
}

// Activate opens a scheduled lot for bidding
func (s *AuctionService) Activate(ctx context.Context, lotID string) (*models.LotSnapshot, error) {
	return s.engine.ForceActivate(ctx, lotID, s.now())
}

// Finish closes a lot immediately
func (s *AuctionService) Finish(ctx context.Context, lotID string) (*models.LotSnapshot, error) {
	return s.engine.ForceFinish(ctx, lotID, s.now())
}

// LotSource supplies archived lots that were still open
type LotSource interface {
	OpenLots(ctx context.Context) ([]models.Lot, error)
	LotBids(ctx context.Context, lotID string) ([]models.Bid, error)
}

// Restore loads open lots from src into the engine. Lots that fail to
// restore are logged and skipped.
func (s *AuctionService) Restore(ctx context.Context, src LotSource) (int, error) {
	lots, err := src.OpenLots(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load open lots: %w", err)
	}

	restored := 0
	for _, lot := range lots {
		bids, err := src.LotBids(ctx, lot.ID)
		if err != nil {
			return restored, fmt.Errorf("failed to load bids for lot %s: %w", lot.ID, err)
		}
		if err := s.engine.Restore(lot, bids); err != nil {
			s.logger.Error("Failed to restore lot", slog.String("lot_id", lot.ID), slog.Any("error", err))
			continue
		}
		restored++
	}
	return restored, nil
}
