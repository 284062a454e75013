// Package storage persists lots, their bid ledgers and the event audit log
// in PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps the PostgreSQL connection
type Store struct {
	db *sqlx.DB
}

// NewStore connects and configures the pool
func NewStore(ctx context.Context, connStr string) (*Store, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Migrate applies the embedded goose migrations
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// lotRow is the lots table. Optional timestamps are nullable.
type lotRow struct {
	ID               string       `db:"id"`
	Plate            string       `db:"plate"`
	Make             string       `db:"make"`
	Line             string       `db:"line"`
	ModelYear        int          `db:"model_year"`
	OwnerRef         string       `db:"owner_ref"`
	Status           string       `db:"status"`
	StartingPrice    int64        `db:"starting_price"`
	BidIncrement     int64        `db:"bid_increment"`
	AuctionStartTime sql.NullTime `db:"auction_start_time"`
	AuctionEndTime   sql.NullTime `db:"auction_end_time"`
	IsExtended       bool         `db:"is_extended"`
	ExtensionCount   int          `db:"extension_count"`
	LastExtension    string       `db:"last_extension"`
	FinishReason     string       `db:"finish_reason"`
	FinishedAt       sql.NullTime `db:"finished_at"`
	CurrentPrice     int64        `db:"current_price"`
	CurrentWinner    string       `db:"current_winner"`
	UniqueBidders    int          `db:"unique_bidders"`
	BidCount         int          `db:"bid_count"`
	Version          int64        `db:"version"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func newLotRow(s *models.LotSnapshot) lotRow {
	return lotRow{
		ID:               s.ID,
		Plate:            s.Vehicle.Plate,
		Make:             s.Vehicle.Make,
		Line:             s.Vehicle.Line,
		ModelYear:        s.Vehicle.Year,
		OwnerRef:         s.OwnerRef,
		Status:           string(s.Status),
		StartingPrice:    s.StartingPrice,
		BidIncrement:     s.BidIncrement,
		AuctionStartTime: nullTime(s.AuctionStartTime),
		AuctionEndTime:   nullTime(s.AuctionEndTime),
		IsExtended:       s.IsExtended,
		ExtensionCount:   s.ExtensionCount,
		LastExtension:    string(s.LastExtension),
		FinishReason:     string(s.FinishReason),
		FinishedAt:       nullTime(s.FinishedAt),
		CurrentPrice:     s.CurrentPrice,
		CurrentWinner:    s.CurrentWinner,
		UniqueBidders:    s.UniqueBidders,
		BidCount:         s.BidCount,
		Version:          int64(s.Version),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (r lotRow) toModel() models.Lot {
	return models.Lot{
		ID:               r.ID,
		Vehicle:          models.Vehicle{Plate: r.Plate, Make: r.Make, Line: r.Line, Year: r.ModelYear},
		OwnerRef:         r.OwnerRef,
		Status:           models.LotStatus(r.Status),
		StartingPrice:    r.StartingPrice,
		BidIncrement:     r.BidIncrement,
		AuctionStartTime: r.AuctionStartTime.Time,
		AuctionEndTime:   r.AuctionEndTime.Time,
		IsExtended:       r.IsExtended,
		ExtensionCount:   r.ExtensionCount,
		LastExtension:    models.ExtensionCause(r.LastExtension),
		FinishReason:     models.FinishReason(r.FinishReason),
		FinishedAt:       r.FinishedAt.Time,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Version:          uint64(r.Version),
	}
}

const upsertLotQuery = `
	INSERT INTO lots (
		id, plate, make, line, model_year, owner_ref, status, starting_price, bid_increment,
		auction_start_time, auction_end_time, is_extended, extension_count, last_extension,
		finish_reason, finished_at, current_price, current_winner, unique_bidders, bid_count,
		version, created_at, updated_at
	) VALUES (
		:id, :plate, :make, :line, :model_year, :owner_ref, :status, :starting_price, :bid_increment,
		:auction_start_time, :auction_end_time, :is_extended, :extension_count, :last_extension,
		:finish_reason, :finished_at, :current_price, :current_winner, :unique_bidders, :bid_count,
		:version, :created_at, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		bid_increment = EXCLUDED.bid_increment,
		auction_start_time = EXCLUDED.auction_start_time,
		auction_end_time = EXCLUDED.auction_end_time,
		is_extended = EXCLUDED.is_extended,
		extension_count = EXCLUDED.extension_count,
		last_extension = EXCLUDED.last_extension,
		finish_reason = EXCLUDED.finish_reason,
		finished_at = EXCLUDED.finished_at,
		current_price = EXCLUDED.current_price,
		current_winner = EXCLUDED.current_winner,
		unique_bidders = EXCLUDED.unique_bidders,
		bid_count = EXCLUDED.bid_count,
		version = EXCLUDED.version,
		updated_at = EXCLUDED.updated_at
	WHERE lots.version < EXCLUDED.version
`

// ApplyEvent records one lot event. It is idempotent: an event id already
// in the audit log is ignored, the lot row only moves forward in version,
// and bids are inserted once.
func (s *Store) ApplyEvent(ctx context.Context, event *models.LotEvent) error {
	if event.Snapshot == nil {
		return fmt.Errorf("event %s has no snapshot", event.EventID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO lot_events (event_id, lot_id, type, version, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.LotID, string(event.Type), int64(event.Version), payload, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	if _, err := tx.NamedExecContext(ctx, upsertLotQuery, newLotRow(event.Snapshot)); err != nil {
		return fmt.Errorf("failed to upsert lot %s: %w", event.LotID, err)
	}

	if event.Bid != nil {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO bids (id, seq, lot_id, bidder_ref, amount, increment, placed_at)
			VALUES (:id, :seq, :lot_id, :bidder_ref, :amount, :increment, :placed_at)
			ON CONFLICT (id) DO NOTHING`, event.Bid); err != nil {
			return fmt.Errorf("failed to insert bid %s: %w", event.Bid.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event %s: %w", event.EventID, err)
	}
	return nil
}

// OpenLots returns lots that are not finished
func (s *Store) OpenLots(ctx context.Context) ([]models.Lot, error) {
	var rows []lotRow
	statuses := []string{string(models.LotStatusScheduled), string(models.LotStatusActive)}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, plate, make, line, model_year, owner_ref, status, starting_price, bid_increment,
		       auction_start_time, auction_end_time, is_extended, extension_count, last_extension,
		       finish_reason, finished_at, current_price, current_winner, unique_bidders, bid_count,
		       version, created_at, updated_at
		FROM lots
		WHERE status = ANY($1)
		ORDER BY id`, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}

	lots := make([]models.Lot, 0, len(rows))
	for _, r := range rows {
		lots = append(lots, r.toModel())
	}
	return lots, nil
}

// LotBids returns a lot's ledger oldest first
func (s *Store) LotBids(ctx context.Context, lotID string) ([]models.Bid, error) {
	var bids []models.Bid
	if err := s.db.SelectContext(ctx, &bids, `
		SELECT id, seq, lot_id, bidder_ref, amount, increment, placed_at
		FROM bids
		WHERE lot_id = $1
		ORDER BY seq`, lotID); err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return bids, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
