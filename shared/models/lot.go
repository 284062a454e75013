package models

import "time"

// LotStatus is the lifecycle position of a lot
type LotStatus string

// LotStatus constants
const (
	LotStatusScheduled LotStatus = "scheduled"
	LotStatusActive    LotStatus = "active"
	LotStatusFinished  LotStatus = "finished"
)

// Valid reports whether s is a known status
func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusScheduled, LotStatusActive, LotStatusFinished:
		return true
	}
	return false
}

// FinishReason records why a lot reached Finished
type FinishReason string

const (
	FinishReasonExpired   FinishReason = "expired"
	FinishReasonAdmin     FinishReason = "admin"
	FinishReasonCancelled FinishReason = "cancelled"
)

// ExtensionCause records who pushed the end time
type ExtensionCause string

const (
	ExtensionCauseAntiSniping ExtensionCause = "anti_sniping"
	ExtensionCauseManual      ExtensionCause = "manual"
)

// Vehicle identifies the vehicle sold in a lot
type Vehicle struct {
	Plate string `json:"plate"`
	Make  string `json:"make"`
	Line  string `json:"line,omitempty"`
	Year  int    `json:"year,omitempty"`
}

// Lot is the mutable record of a single auction.
// Amounts are integral currency units.
type Lot struct {
	ID               string         `json:"id"`
	Vehicle          Vehicle        `json:"vehicle"`
	OwnerRef         string         `json:"owner_ref,omitempty"`
	Status           LotStatus      `json:"status"`
	StartingPrice    int64          `json:"starting_price"`
	BidIncrement     int64          `json:"bid_increment"`
	AuctionStartTime time.Time      `json:"auction_start_time,omitzero"`
	AuctionEndTime   time.Time      `json:"auction_end_time,omitzero"`
	IsExtended       bool           `json:"is_extended"`
	ExtensionCount   int            `json:"extension_count"`
	LastExtension    ExtensionCause `json:"last_extension,omitempty"`
	FinishReason     FinishReason   `json:"finish_reason,omitempty"`
	FinishedAt       time.Time      `json:"finished_at,omitzero"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Version          uint64         `json:"version"`
}

// LotSnapshot is an immutable view of a lot and its ledger at one version.
// Derived fields are computed from the ledger when the snapshot is taken.
type LotSnapshot struct {
	Lot
	CurrentPrice  int64  `json:"current_price"`
	MinimumBid    int64  `json:"minimum_bid"`
	CurrentWinner string `json:"current_winner,omitempty"`
	WinningBidID  string `json:"winning_bid_id,omitempty"`
	UniqueBidders int    `json:"unique_bidders"`
	BidCount      int    `json:"bid_count"`
	Bids          []Bid  `json:"bids,omitempty"`
}

// TimeRemaining returns how long until the lot closes, zero once past.
func (s *LotSnapshot) TimeRemaining(now time.Time) time.Duration {
	if s.Status != LotStatusActive || s.AuctionEndTime.IsZero() {
		return 0
	}
	if d := s.AuctionEndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ExpiringSoon reports an active lot with less than threshold left
func (s *LotSnapshot) ExpiringSoon(now time.Time, threshold time.Duration) bool {
	d := s.TimeRemaining(now)
	return d > 0 && d < threshold
}

// LotDraft is what the listing workflow submits to open a lot
type LotDraft struct {
	ID               string    `json:"id,omitempty"`
	Vehicle          Vehicle   `json:"vehicle"`
	OwnerRef         string    `json:"owner_ref,omitempty"`
	StartingPrice    int64     `json:"starting_price"`
	BidIncrement     int64     `json:"bid_increment"`
	AuctionStartTime time.Time `json:"auction_start_time,omitzero"`
	AuctionEndTime   time.Time `json:"auction_end_time,omitzero"`
}

// IncrementRequest changes the minimum bid step
type IncrementRequest struct {
	Increment int64 `json:"increment"`
}

// ExtendRequest pushes the end time of an active lot
type ExtendRequest struct {
	Minutes int `json:"minutes"`
}

// LotView is the API representation of a lot with timing hints
type LotView struct {
	*LotSnapshot
	TimeRemainingSeconds int64 `json:"time_remaining_seconds"`
	ExpiringSoon         bool  `json:"expiring_soon"`
}
