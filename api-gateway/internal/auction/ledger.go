package auction

import (
	"fmt"
	"math"

	"github.com/aaronwang/lot-auction/shared/models"
)

// ledger is the append-only bid log of a lot. It is only touched while the
// lot's scope is held; snapshots share its backing array read-only.
type ledger struct {
	lotID   string
	bids    []models.Bid
	bidders map[string]int
	top     int // index of the highest bid, -1 when empty
}

func newLedger(lotID string) *ledger {
	return &ledger{lotID: lotID, bidders: make(map[string]int), top: -1}
}

// append adds bid if the caller's view of the ledger is still current:
// expectedLen must match and the amount must beat the standing high bid.
func (l *ledger) append(bid models.Bid, expectedLen int) error {
	if len(l.bids) != expectedLen {
		return &ConflictError{
			LotID:  l.lotID,
			Reason: fmt.Sprintf("ledger moved from %d to %d bids", expectedLen, len(l.bids)),
		}
	}
	if high, ok := l.highest(); ok && bid.Amount <= high.Amount {
		return &ConflictError{
			LotID:  l.lotID,
			Reason: fmt.Sprintf("amount %d no longer beats %d", bid.Amount, high.Amount),
		}
	}

	l.bids = append(l.bids, bid)
	l.bidders[bid.BidderRef]++
	l.rank(len(l.bids) - 1)
	return nil
}

// rank keeps top pointing at the highest amount. Equal amounts never
// displace the earlier bid.
func (l *ledger) rank(i int) {
	if l.top < 0 || l.bids[i].Amount > l.bids[l.top].Amount {
		l.top = i
	}
}

func (l *ledger) highest() (models.Bid, bool) {
	if l.top < 0 {
		return models.Bid{}, false
	}
	return l.bids[l.top], true
}

// list returns the bids oldest first. The slice is capped so appends made
// later never write into memory a reader holds.
func (l *ledger) list() []models.Bid {
	return l.bids[:len(l.bids):len(l.bids)]
}

func (l *ledger) len() int { return len(l.bids) }

func (l *ledger) uniqueBidderCount() int { return len(l.bidders) }

// currentPrice is the high bid, or startingPrice for an empty ledger
func (l *ledger) currentPrice(startingPrice int64) int64 {
	if high, ok := l.highest(); ok {
		return high.Amount
	}
	return startingPrice
}

// minimumBid is current + increment. ok is false when the sum does not fit
// in an int64; the returned value then saturates at math.MaxInt64.
func minimumBid(current, increment int64) (int64, bool) {
	if increment > 0 && current > math.MaxInt64-increment {
		return math.MaxInt64, false
	}
	return current + increment, true
}

func (l *ledger) currentWinner() string {
	if high, ok := l.highest(); ok {
		return high.BidderRef
	}
	return ""
}
