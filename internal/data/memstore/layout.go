package memstore

import (
	"context"
	"sort"

	"smarter-store/internal/data/entity"

	"github.com/google/uuid"
)

type layoutStore struct {
	db     *DB
	locked bool
}

// LockSchedule is a no-op, a unit of work already holds the store mutex.
func (r *layoutStore) LockSchedule(ctx context.Context, scheduleID uuid.UUID, exclusive bool) error {
	return nil
}

func (r *layoutStore) Replace(ctx context.Context, scheduleID uuid.UUID, seats []*entity.LayoutSeat) error {
	return r.db.with(r.locked, func(s *state) error {
		layout := make(map[entity.Position]string, len(seats))
		for _, seat := range seats {
			layout[seat.Position] = seat.Grade
		}
		s.layouts[scheduleID] = layout
		return nil
	})
}

func (r *layoutStore) FindBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*entity.LayoutSeat, error) {
	var seats []*entity.LayoutSeat
	err := r.db.with(r.locked, func(s *state) error {
		for p, grade := range s.layouts[scheduleID] {
			seats = append(seats, &entity.LayoutSeat{ScheduleID: scheduleID, Position: p, Grade: grade})
		}
		return nil
	})
	sort.Slice(seats, func(i, j int) bool {
		return seats[i].Position.Less(seats[j].Position)
	})
	return seats, err
}

func (r *layoutStore) FindGrades(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) (map[entity.Position]string, error) {
	grades := make(map[entity.Position]string, len(positions))
	err := r.db.with(r.locked, func(s *state) error {
		layout := s.layouts[scheduleID]
		for _, p := range positions {
			if grade, ok := layout[p]; ok {
				grades[p] = grade
			}
		}
		return nil
	})
	return grades, err
}
