package models

import "time"

// Bid is one accepted offer in a lot's ledger.
// Seq is the 1-based position in the ledger and is encoded in ID.
type Bid struct {
	ID        string    `json:"id" db:"id"`
	Seq       int       `json:"seq" db:"seq"`
	LotID     string    `json:"lot_id" db:"lot_id"`
	BidderRef string    `json:"bidder_id" db:"bidder_ref"`
	Amount    int64     `json:"amount" db:"amount"`
	Increment int64     `json:"increment" db:"increment"`
	Timestamp time.Time `json:"timestamp" db:"placed_at"`
}

// BidRequest represents the incoming bid request from API
type BidRequest struct {
	BidderID string `json:"bidder_id"`
	Amount   int64  `json:"amount"`
	// ExpectedPrice is the current price the bidder saw when choosing Amount.
	ExpectedPrice *int64 `json:"expected_price,omitempty"`
}

// BidResponse represents the API response after a bid is accepted
type BidResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	BidID        string    `json:"bid_id"`
	LotID        string    `json:"lot_id"`
	Amount       int64     `json:"amount"`
	CurrentPrice int64     `json:"current_price"`
	MinimumBid   int64     `json:"minimum_bid"`
	EndTime      time.Time `json:"auction_end_time"`
	Extended     bool      `json:"extended"`
	IsHighest    bool      `json:"is_highest"`
	Replayed     bool      `json:"replayed,omitempty"`
}
