package auction

import (
	"errors"
	"fmt"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
)

var (
	// ErrLotNotFound is returned for unknown lot ids
	ErrLotNotFound = errors.New("lot not found")
	// ErrLotExists is returned when the listing workflow reuses an id
	ErrLotExists = errors.New("lot already exists")
)

// ValidationError reports malformed input. Nothing was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError means the operation does not apply to the lot's status.
type InvalidStateError struct {
	LotID  string
	Op     string
	Status models.LotStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("lot %s: cannot %s while %s", e.LotID, e.Op, e.Status)
}

// InvalidTransitionError means a lifecycle move was requested from the wrong status.
type InvalidTransitionError struct {
	LotID string
	From  models.LotStatus
	To    models.LotStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lot %s: invalid transition %s -> %s", e.LotID, e.From, e.To)
}

// BidTooLowError carries the smallest amount that would have been accepted.
type BidTooLowError struct {
	LotID   string
	Amount  int64
	Minimum int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid %d on lot %s is too low, minimum is %d", e.Amount, e.LotID, e.Minimum)
}

// AuctionClosedError is terminal for the bid that received it.
type AuctionClosedError struct {
	LotID     string
	Status    models.LotStatus
	StartTime time.Time
	EndTime   time.Time
	At        time.Time
}

func (e *AuctionClosedError) Error() string {
	if e.Status == models.LotStatusActive && e.At.Before(e.StartTime) {
		return fmt.Sprintf("auction for lot %s opens at %s", e.LotID, e.StartTime.Format(time.RFC3339))
	}
	if e.Status == models.LotStatusActive {
		return fmt.Sprintf("auction for lot %s closed at %s", e.LotID, e.EndTime.Format(time.RFC3339))
	}
	return fmt.Sprintf("auction for lot %s is not open (%s)", e.LotID, e.Status)
}

// ConflictError means a concurrent mutation raced the caller. Re-read the
// lot before retrying.
type ConflictError struct {
	LotID  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on lot %s: %s", e.LotID, e.Reason)
}

func validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
