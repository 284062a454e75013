package models

import "time"

// LotEventType names a committed lot mutation
type LotEventType string

const (
	EventLotCreated       LotEventType = "lot.created"
	EventLotActivated     LotEventType = "lot.activated"
	EventBidPlaced        LotEventType = "bid.placed"
	EventLotExtended      LotEventType = "lot.extended"
	EventIncrementUpdated LotEventType = "lot.increment_updated"
	EventLotFinished      LotEventType = "lot.finished"
)

// LotEvent is published after a mutation commits.
// This is sent to:
// 1. Redis Pub/Sub (for real-time WebSocket broadcast)
// 2. NATS JetStream (for archival to PostgreSQL)
type LotEvent struct {
	EventID   string       `json:"event_id"`
	Type      LotEventType `json:"type"`
	LotID     string       `json:"lot_id"`
	Version   uint64       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	// Snapshot is the lot state right after the mutation, without the bid history.
	Snapshot *LotSnapshot `json:"snapshot"`
	Bid      *Bid         `json:"bid,omitempty"`

	PreviousPrice  int64          `json:"previous_price,omitempty"`
	ExtendedBy     time.Duration  `json:"extended_by,omitempty"`
	ExtensionCause ExtensionCause `json:"extension_cause,omitempty"`
	FinishReason   FinishReason   `json:"finish_reason,omitempty"`
}
