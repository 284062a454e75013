package storage

import (
	"io/fs"
	"testing"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotRow_UnsetTimesAreNull(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := &models.LotSnapshot{
		Lot: models.Lot{
			ID:            "L1",
			Vehicle:       models.Vehicle{Plate: "P-1", Make: "Kia", Line: "Picanto", Year: 2020},
			Status:        models.LotStatusScheduled,
			StartingPrice: 1000,
			BidIncrement:  100,
			CreatedAt:     created,
			UpdatedAt:     created,
			Version:       1,
		},
		CurrentPrice: 1000,
	}

	row := newLotRow(snap)
	assert.False(t, row.AuctionStartTime.Valid)
	assert.False(t, row.AuctionEndTime.Valid)
	assert.False(t, row.FinishedAt.Valid)
	assert.Equal(t, 2020, row.ModelYear)

	lot := row.toModel()
	assert.True(t, lot.AuctionEndTime.IsZero())
	assert.Equal(t, snap.Lot, lot)
}

func TestLotRow_FinishedLot(t *testing.T) {
	end := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	snap := &models.LotSnapshot{Lot: models.Lot{
		ID:             "L2",
		Status:         models.LotStatusFinished,
		BidIncrement:   5,
		AuctionEndTime: end,
		FinishReason:   models.FinishReasonExpired,
		FinishedAt:     end,
		Version:        9,
	}}

	row := newLotRow(snap)
	require.True(t, row.FinishedAt.Valid)
	assert.Equal(t, "expired", row.FinishReason)
	assert.Equal(t, int64(9), row.Version)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/00001_create_lots.sql", "migrations/00002_create_bids.sql"}, files)
}
