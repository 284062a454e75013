package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
)

// BidReceipt describes an accepted bid and the lot timing after it.
type BidReceipt struct {
	Bid          models.Bid
	EndTime      time.Time
	Extended     bool
	CurrentPrice int64
	MinimumBid   int64
	Version      uint64
}

type bidOptions struct {
	expectedPrice *int64
}

// BidOption tunes a single submission
type BidOption func(*bidOptions)

// WithExpectedPrice records the current price the bidder computed the amount
// against. If the price has moved and the amount no longer clears the
// minimum, the bid fails with ConflictError instead of BidTooLowError.
func WithExpectedPrice(price int64) BidOption {
	return func(o *bidOptions) { o.expectedPrice = &price }
}

// SubmitBid admits or rejects one bid. The status check, the minimum
// check, the append and any anti-sniping extension all happen inside the
// lot's scope, so acceptance order equals scope acquisition order.
func (e *Engine) SubmitBid(ctx context.Context, lotID, bidderRef string, amount int64, now time.Time, opts ...BidOption) (*BidReceipt, error) {
	bidderRef = strings.TrimSpace(bidderRef)
	if bidderRef == "" {
		return nil, validation("bidder_id", "is required")
	}
	if amount <= 0 {
		return nil, validation("amount", "must be positive")
	}

	var o bidOptions
	for _, opt := range opts {
		opt(&o)
	}

	var receipt BidReceipt
	snap, err := e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		r := &l.rec
		if !l.open(now) {
			return nil, &AuctionClosedError{
				LotID:     r.ID,
				Status:    r.Status,
				StartTime: r.AuctionStartTime,
				EndTime:   r.AuctionEndTime,
				At:        now,
			}
		}

		current := l.ledger.currentPrice(r.StartingPrice)
		minimum, ok := minimumBid(current, r.BidIncrement)
		if !ok || amount < minimum {
			if o.expectedPrice != nil && *o.expectedPrice != current {
				return nil, &ConflictError{
					LotID:  r.ID,
					Reason: fmt.Sprintf("price moved from %d to %d", *o.expectedPrice, current),
				}
			}
			return nil, &BidTooLowError{LotID: r.ID, Amount: amount, Minimum: minimum}
		}

		seq := l.ledger.len() + 1
		bid := models.Bid{
			ID:        bidID(r.ID, seq),
			Seq:       seq,
			LotID:     r.ID,
			BidderRef: bidderRef,
			Amount:    amount,
			Increment: r.BidIncrement,
			Timestamp: now,
		}
		if err := l.ledger.append(bid, seq-1); err != nil {
			return nil, err
		}

		changes := []change{{typ: models.EventBidPlaced, bid: &bid, previousPrice: current}}
		receipt.Bid = bid

		// Evaluated once, against the end time as it stood before this bid.
		if d, ok := e.policy.Evaluate(r.AuctionEndTime, now); ok {
			if err := l.extendEndTime(d, models.ExtensionCauseAntiSniping); err != nil {
				return nil, err
			}
			receipt.Extended = true
			changes = append(changes, change{
				typ:            models.EventLotExtended,
				extendedBy:     d,
				extensionCause: models.ExtensionCauseAntiSniping,
			})
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	receipt.EndTime = snap.AuctionEndTime
	receipt.CurrentPrice = snap.CurrentPrice
	receipt.MinimumBid = snap.MinimumBid
	receipt.Version = snap.Version
	return &receipt, nil
}

func bidID(lotID string, seq int) string {
	return fmt.Sprintf("%s-%06d", lotID, seq)
}
