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

// SeatLayoutRepository stores the fixed seat grid of each schedule.
type SeatLayoutRepository interface {
	Replace(ctx context.Context, scheduleID uuid.UUID, seats []*entity.LayoutSeat) error
	FindBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*entity.LayoutSeat, error)
	FindGrades(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) (map[entity.Position]string, error)
	// LockSchedule serializes layout changes against holds on the same
	// schedule until the unit of work ends. Holds take it shared.
	LockSchedule(ctx context.Context, scheduleID uuid.UUID, exclusive bool) error
}

type seatLayoutRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewSeatLayoutRepository(db database.Querier, log *zap.Logger) SeatLayoutRepository {
	return &seatLayoutRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat_layout")),
	}
}

func (r *seatLayoutRepository) LockSchedule(ctx context.Context, scheduleID uuid.UUID, exclusive bool) error {
	query := `SELECT pg_advisory_xact_lock_shared(hashtextextended($1, 0))`
	if exclusive {
		query = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	}

	if _, err := r.db.Exec(ctx, query, "layout:"+scheduleID.String()); err != nil {
		r.log.Error("Failed to lock layout",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
			zap.Bool("exclusive", exclusive),
		)
		return fmt.Errorf("lock layout of schedule %s: %w", scheduleID.String(), err)
	}
	return nil
}

func (r *seatLayoutRepository) Replace(ctx context.Context, scheduleID uuid.UUID, seats []*entity.LayoutSeat) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM schedule_seats WHERE schedule_id = $1`, scheduleID); err != nil {
		r.log.Error("Failed to clear layout",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return fmt.Errorf("clear layout of schedule %s: %w", scheduleID.String(), err)
	}

	if len(seats) == 0 {
		return nil
	}

	// Build batch insert
	query := `INSERT INTO schedule_seats (schedule_id, seat_row, seat_col, grade) VALUES `
	args := make([]any, 0, len(seats)*4)
	values := make([]string, 0, len(seats))

	for i, seat := range seats {
		n := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
		args = append(args, scheduleID, seat.Position.Row, seat.Position.Column, seat.Grade)
	}

	_, err := r.db.Exec(ctx, query+strings.Join(values, ", "), args...)
	if err != nil {
		r.log.Error("Failed to insert layout",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
			zap.Int("count", len(seats)),
		)
		return fmt.Errorf("insert layout of schedule %s: %w", scheduleID.String(), err)
	}

	return nil
}

func (r *seatLayoutRepository) FindBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*entity.LayoutSeat, error) {
	query := `
		SELECT schedule_id, seat_row, seat_col, grade
		FROM schedule_seats
		WHERE schedule_id = $1
		ORDER BY seat_row, seat_col
	`

	rows, err := r.db.Query(ctx, query, scheduleID)
	if err != nil {
		r.log.Error("Failed to find layout",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return nil, fmt.Errorf("find layout of schedule %s: %w", scheduleID.String(), err)
	}
	defer rows.Close()

	var seats []*entity.LayoutSeat
	for rows.Next() {
		var seat entity.LayoutSeat
		if err := rows.Scan(&seat.ScheduleID, &seat.Position.Row, &seat.Position.Column, &seat.Grade); err != nil {
			r.log.Error("Failed to scan layout row", zap.Error(err))
			return nil, fmt.Errorf("scan layout row: %w", err)
		}
		seats = append(seats, &seat)
	}

	return seats, rows.Err()
}

// FindGrades returns the grade of every requested position present in the
// layout. Missing positions are absent from the map.
func (r *seatLayoutRepository) FindGrades(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) (map[entity.Position]string, error) {
	grades := make(map[entity.Position]string, len(positions))
	if len(positions) == 0 {
		return grades, nil
	}

	rows, cols := positionArrays(positions)
	result, err := r.db.Query(ctx, `
		SELECT seat_row, seat_col, grade
		FROM schedule_seats
		WHERE schedule_id = $1 AND `+inPositions, scheduleID, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("find grades of schedule %s: %w", scheduleID.String(), err)
	}
	defer result.Close()

	for result.Next() {
		var p entity.Position
		var grade string
		if err := result.Scan(&p.Row, &p.Column, &grade); err != nil {
			return nil, fmt.Errorf("scan grade row: %w", err)
		}
		grades[p] = grade
	}

	return grades, result.Err()
}
