package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldParams describes one all-or-nothing hold attempt.
type HoldParams struct {
	ScheduleID     uuid.UUID
	Positions      []entity.Position
	Grades         map[entity.Position]string
	HolderUserID   uuid.UUID
	LeaseExpiresAt time.Time
	Now            time.Time
}

// HoldResult is a successful TryHold. Reclaimed lists positions whose stale
// hold was replaced; their previous ledger entries must be detached.
type HoldResult struct {
	Holds     []*entity.SeatHold
	Reclaimed []entity.Position
}

// SeatHoldRepository is the authoritative per-seat occupancy table. Every
// mutation locks the affected positions in sorted order first.
type SeatHoldRepository interface {
	TryHold(ctx context.Context, params HoldParams) (*HoldResult, error)
	Release(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) ([]entity.Position, error)
	Confirm(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) error
	Extend(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, leaseExpiresAt, now time.Time) error

	FindLiveBySchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) ([]*entity.SeatHold, error)
	FindOrphans(ctx context.Context, now time.Time, limit int) ([]*entity.SeatHold, error)
	ReleaseOrphans(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) ([]entity.Position, error)
}

type seatHoldRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewSeatHoldRepository(db database.Querier, log *zap.Logger) SeatHoldRepository {
	return &seatHoldRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat_hold")),
	}
}

// lockPositions takes a transaction scoped advisory lock per seat in sorted
// order, so overlapping requests cannot deadlock each other.
func lockPositions(ctx context.Context, db database.Querier, scheduleID uuid.UUID, positions []entity.Position) error {
	for _, p := range entity.SortPositions(positions) {
		key := fmt.Sprintf("%s:%d:%d", scheduleID, p.Row, p.Column)
		if _, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock seat %s of schedule %s: %w", p, scheduleID, err)
		}
	}
	return nil
}

func positionArrays(positions []entity.Position) ([]int32, []int32) {
	rows := make([]int32, len(positions))
	cols := make([]int32, len(positions))
	for i, p := range positions {
		rows[i] = int32(p.Row)
		cols[i] = int32(p.Column)
	}
	return rows, cols
}

const inPositions = `(seat_row, seat_col) IN (SELECT * FROM unnest($2::int[], $3::int[]))`

func (r *seatHoldRepository) TryHold(ctx context.Context, params HoldParams) (*HoldResult, error) {
	positions := entity.SortPositions(params.Positions)

	if err := lockPositions(ctx, r.db, params.ScheduleID, positions); err != nil {
		return nil, err
	}

	rows, cols := positionArrays(positions)

	existing, err := r.db.Query(ctx, `
		SELECT seat_row, seat_col, status, lease_expires_at
		FROM seat_holds
		WHERE schedule_id = $1 AND `+inPositions+`
		ORDER BY seat_row, seat_col
	`, params.ScheduleID, rows, cols)
	if err != nil {
		r.log.Error("Failed to read existing holds",
			zap.Error(err),
			zap.String("schedule_id", params.ScheduleID.String()),
		)
		return nil, fmt.Errorf("read holds for schedule %s: %w", params.ScheduleID, err)
	}

	var conflicts, stale []entity.Position
	for existing.Next() {
		var hold entity.SeatHold
		if err := existing.Scan(&hold.Position.Row, &hold.Position.Column, &hold.Status, &hold.LeaseExpiresAt); err != nil {
			existing.Close()
			return nil, fmt.Errorf("scan seat hold row: %w", err)
		}
		if hold.IsStale(params.Now) {
			stale = append(stale, hold.Position)
		} else {
			conflicts = append(conflicts, hold.Position)
		}
	}
	existing.Close()
	if err := existing.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat hold rows: %w", err)
	}

	if len(conflicts) > 0 {
		return nil, &ConflictError{Positions: conflicts}
	}

	if len(stale) > 0 {
		staleRows, staleCols := positionArrays(stale)
		if _, err := r.db.Exec(ctx, `
			DELETE FROM seat_holds
			WHERE schedule_id = $1 AND `+inPositions+` AND status = 'HELD' AND lease_expires_at < $4
		`, params.ScheduleID, staleRows, staleCols, params.Now); err != nil {
			return nil, fmt.Errorf("reclaim stale holds for schedule %s: %w", params.ScheduleID, err)
		}
	}

	holder := params.HolderUserID
	lease := params.LeaseExpiresAt
	holds := make([]*entity.SeatHold, len(positions))

	query := `INSERT INTO seat_holds (schedule_id, seat_row, seat_col, grade, status, holder_user_id, lease_expires_at, created_at, updated_at) VALUES `
	args := make([]any, 0, len(positions)*9)
	values := make([]string, 0, len(positions))

	for i, p := range positions {
		holds[i] = &entity.SeatHold{
			Timestamps:     entity.Timestamps{CreatedAt: params.Now, UpdatedAt: params.Now},
			ScheduleID:     params.ScheduleID,
			Position:       p,
			Grade:          params.Grades[p],
			Status:         entity.SeatHoldStatusHeld,
			HolderUserID:   &holder,
			LeaseExpiresAt: &lease,
		}
		n := i * 9
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9))
		args = append(args,
			params.ScheduleID,
			p.Row,
			p.Column,
			holds[i].Grade,
			holds[i].Status,
			holder,
			lease,
			params.Now,
			params.Now,
		)
	}

	if _, err := r.db.Exec(ctx, query+strings.Join(values, ", "), args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &ConflictError{Positions: positions}
		}
		r.log.Error("Failed to insert seat holds",
			zap.Error(err),
			zap.String("schedule_id", params.ScheduleID.String()),
			zap.Int("seat_count", len(positions)),
		)
		return nil, fmt.Errorf("insert holds for schedule %s: %w", params.ScheduleID, err)
	}

	return &HoldResult{Holds: holds, Reclaimed: stale}, nil
}

func (r *seatHoldRepository) Release(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) ([]entity.Position, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	if err := lockPositions(ctx, r.db, scheduleID, positions); err != nil {
		return nil, err
	}

	rows, cols := positionArrays(positions)
	deleted, err := r.db.Query(ctx, `
		DELETE FROM seat_holds
		WHERE schedule_id = $1 AND `+inPositions+`
		RETURNING seat_row, seat_col
	`, scheduleID, rows, cols)
	if err != nil {
		r.log.Error("Failed to release seat holds",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return nil, fmt.Errorf("release holds for schedule %s: %w", scheduleID, err)
	}

	released, err := scanPositions(deleted)
	if err != nil {
		return nil, err
	}
	return entity.SortPositions(released), nil
}

func (r *seatHoldRepository) Confirm(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	if err := lockPositions(ctx, r.db, scheduleID, positions); err != nil {
		return err
	}

	rows, cols := positionArrays(positions)
	result, err := r.db.Exec(ctx, `
		UPDATE seat_holds
		SET status = 'RESERVED', lease_expires_at = NULL, updated_at = $4
		WHERE schedule_id = $1 AND `+inPositions+` AND status = 'HELD' AND lease_expires_at >= $4
	`, scheduleID, rows, cols, now)
	if err != nil {
		r.log.Error("Failed to confirm seat holds",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return fmt.Errorf("confirm holds for schedule %s: %w", scheduleID, err)
	}

	if int(result.RowsAffected()) != len(entity.SortPositions(positions)) {
		return fmt.Errorf("confirm %d seats of schedule %s, %d live: %w",
			len(positions), scheduleID, result.RowsAffected(), ErrNotHeld)
	}
	return nil
}

func (r *seatHoldRepository) Extend(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, leaseExpiresAt, now time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	if err := lockPositions(ctx, r.db, scheduleID, positions); err != nil {
		return err
	}

	rows, cols := positionArrays(positions)
	result, err := r.db.Exec(ctx, `
		UPDATE seat_holds
		SET lease_expires_at = $4, updated_at = $5
		WHERE schedule_id = $1 AND `+inPositions+` AND status = 'HELD' AND lease_expires_at >= $5
	`, scheduleID, rows, cols, leaseExpiresAt, now)
	if err != nil {
		return fmt.Errorf("extend holds for schedule %s: %w", scheduleID, err)
	}

	if int(result.RowsAffected()) != len(entity.SortPositions(positions)) {
		return fmt.Errorf("extend %d seats of schedule %s, %d live: %w",
			len(positions), scheduleID, result.RowsAffected(), ErrNotHeld)
	}
	return nil
}

const seatHoldColumns = `schedule_id, seat_row, seat_col, grade, status, holder_user_id, lease_expires_at, created_at, updated_at`

func (r *seatHoldRepository) FindLiveBySchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) ([]*entity.SeatHold, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+seatHoldColumns+`
		FROM seat_holds
		WHERE schedule_id = $1 AND (status = 'RESERVED' OR lease_expires_at >= $2)
		ORDER BY seat_row, seat_col
	`, scheduleID, now)
	if err != nil {
		r.log.Error("Failed to find live holds",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return nil, fmt.Errorf("find live holds for schedule %s: %w", scheduleID, err)
	}
	defer rows.Close()

	return scanSeatHolds(rows)
}

func (r *seatHoldRepository) FindOrphans(ctx context.Context, now time.Time, limit int) ([]*entity.SeatHold, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+seatHoldColumns+`
		FROM seat_holds h
		WHERE h.status = 'HELD' AND h.lease_expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM hold_ledger l
			JOIN bookings b ON b.id = l.booking_id
			WHERE l.schedule_id = h.schedule_id AND l.seat_row = h.seat_row AND l.seat_col = h.seat_col
			  AND b.status = 'PENDING'
		  )
		ORDER BY h.schedule_id, h.seat_row, h.seat_col
		LIMIT $2
	`, now, limit)
	if err != nil {
		r.log.Error("Failed to find orphan holds", zap.Error(err))
		return nil, fmt.Errorf("find orphan holds: %w", err)
	}
	defer rows.Close()

	return scanSeatHolds(rows)
}

func (r *seatHoldRepository) ReleaseOrphans(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) ([]entity.Position, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	if err := lockPositions(ctx, r.db, scheduleID, positions); err != nil {
		return nil, err
	}

	// the orphan predicate is evaluated again under the seat locks
	rows, cols := positionArrays(positions)
	deleted, err := r.db.Query(ctx, `
		DELETE FROM seat_holds h
		WHERE h.schedule_id = $1 AND (h.seat_row, h.seat_col) IN (SELECT * FROM unnest($2::int[], $3::int[]))
		  AND h.status = 'HELD' AND h.lease_expires_at < $4
		  AND NOT EXISTS (
			SELECT 1 FROM hold_ledger l
			JOIN bookings b ON b.id = l.booking_id
			WHERE l.schedule_id = h.schedule_id AND l.seat_row = h.seat_row AND l.seat_col = h.seat_col
			  AND b.status = 'PENDING'
		  )
		RETURNING h.seat_row, h.seat_col
	`, scheduleID, rows, cols, now)
	if err != nil {
		return nil, fmt.Errorf("release orphan holds for schedule %s: %w", scheduleID, err)
	}

	released, err := scanPositions(deleted)
	if err != nil {
		return nil, err
	}
	return entity.SortPositions(released), nil
}

type scanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanPositions(rows scanner) ([]entity.Position, error) {
	defer rows.Close()

	var positions []entity.Position
	for rows.Next() {
		var p entity.Position
		if err := rows.Scan(&p.Row, &p.Column); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

func scanSeatHolds(rows scanner) ([]*entity.SeatHold, error) {
	var holds []*entity.SeatHold
	for rows.Next() {
		var hold entity.SeatHold
		err := rows.Scan(
			&hold.ScheduleID,
			&hold.Position.Row,
			&hold.Position.Column,
			&hold.Grade,
			&hold.Status,
			&hold.HolderUserID,
			&hold.LeaseExpiresAt,
			&hold.CreatedAt,
			&hold.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan seat hold row: %w", err)
		}
		holds = append(holds, &hold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat hold rows: %w", err)
	}
	return holds, nil
}
