package repository

import (
	"context"
	"fmt"
	"strings"

	"smarter-store/internal/data/entity"
	"smarter-store/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldLedgerRepository groups seat holds by the booking that owns them.
type HoldLedgerRepository interface {
	CreateBatch(ctx context.Context, entries []*entity.HoldLedgerEntry) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.HoldLedgerEntry, error)
	// FindPositionsForUpdate returns the booking's positions with their seat
	// locks held, so a concurrent reclaim of a stale seat is already visible.
	FindPositionsForUpdate(ctx context.Context, bookingID, scheduleID uuid.UUID) ([]entity.Position, error)
	DeleteByBookingID(ctx context.Context, bookingID uuid.UUID) error
	// DetachPositions drops entries of previous owners at reclaimed positions.
	DetachPositions(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error
	// DeleteDangling drops entries at positions whose booking is gone or no
	// longer PENDING or CONFIRMED.
	DeleteDangling(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error
}

type holdLedgerRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewHoldLedgerRepository(db database.Querier, log *zap.Logger) HoldLedgerRepository {
	return &holdLedgerRepository{
		db:  db,
		log: log.With(zap.String("repository", "hold_ledger")),
	}
}

func (r *holdLedgerRepository) CreateBatch(ctx context.Context, entries []*entity.HoldLedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO hold_ledger (booking_id, schedule_id, seat_row, seat_col, created_at) VALUES `
	args := make([]any, 0, len(entries)*5)
	values := make([]string, 0, len(entries))

	for i, e := range entries {
		n := i * 5
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, e.BookingID, e.ScheduleID, e.Position.Row, e.Position.Column, e.CreatedAt)
	}

	_, err := r.db.Exec(ctx, query+strings.Join(values, ", "), args...)
	if err != nil {
		r.log.Error("Failed to create ledger entries",
			zap.Error(err),
			zap.String("booking_id", entries[0].BookingID.String()),
			zap.Int("count", len(entries)),
		)
		return fmt.Errorf("create ledger entries for booking %s: %w", entries[0].BookingID.String(), err)
	}

	return nil
}

func (r *holdLedgerRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.HoldLedgerEntry, error) {
	query := `
		SELECT booking_id, schedule_id, seat_row, seat_col, created_at
		FROM hold_ledger
		WHERE booking_id = $1
		ORDER BY seat_row, seat_col
	`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to find ledger entries by booking ID",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("find ledger entries by booking ID %s: %w", bookingID.String(), err)
	}
	defer rows.Close()

	var entries []*entity.HoldLedgerEntry
	for rows.Next() {
		var e entity.HoldLedgerEntry
		if err := rows.Scan(&e.BookingID, &e.ScheduleID, &e.Position.Row, &e.Position.Column, &e.CreatedAt); err != nil {
			r.log.Error("Failed to scan ledger row", zap.Error(err))
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func (r *holdLedgerRepository) positions(ctx context.Context, bookingID uuid.UUID) ([]entity.Position, error) {
	rows, err := r.db.Query(ctx, `SELECT seat_row, seat_col FROM hold_ledger WHERE booking_id = $1`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("find ledger positions of booking %s: %w", bookingID.String(), err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	return entity.SortPositions(positions), nil
}

func (r *holdLedgerRepository) FindPositionsForUpdate(ctx context.Context, bookingID, scheduleID uuid.UUID) ([]entity.Position, error) {
	positions, err := r.positions(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}

	if err := lockPositions(ctx, r.db, scheduleID, positions); err != nil {
		return nil, err
	}

	// read again: a reclaim that committed before the locks were granted
	// may have detached some of them
	return r.positions(ctx, bookingID)
}

func (r *holdLedgerRepository) DeleteByBookingID(ctx context.Context, bookingID uuid.UUID) error {
	query := `DELETE FROM hold_ledger WHERE booking_id = $1`

	_, err := r.db.Exec(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to delete ledger entries by booking ID",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return fmt.Errorf("delete ledger entries by booking ID %s: %w", bookingID.String(), err)
	}

	return nil
}

func (r *holdLedgerRepository) DetachPositions(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error {
	if len(positions) == 0 {
		return nil
	}

	rows, cols := positionArrays(positions)
	_, err := r.db.Exec(ctx, `
		DELETE FROM hold_ledger
		WHERE schedule_id = $1 AND `+inPositions, scheduleID, rows, cols)
	if err != nil {
		return fmt.Errorf("detach ledger entries of schedule %s: %w", scheduleID.String(), err)
	}
	return nil
}

func (r *holdLedgerRepository) DeleteDangling(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error {
	if len(positions) == 0 {
		return nil
	}

	rows, cols := positionArrays(positions)
	_, err := r.db.Exec(ctx, `
		DELETE FROM hold_ledger l
		WHERE l.schedule_id = $1 AND (l.seat_row, l.seat_col) IN (SELECT * FROM unnest($2::int[], $3::int[]))
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.id = l.booking_id AND b.status IN ('PENDING', 'CONFIRMED')
		  )
	`, scheduleID, rows, cols)
	if err != nil {
		return fmt.Errorf("delete dangling ledger entries of schedule %s: %w", scheduleID.String(), err)
	}
	return nil
}
