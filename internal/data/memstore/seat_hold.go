package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"

	"github.com/google/uuid"
)

type seatHoldStore struct {
	db     *DB
	locked bool
}

func (r *seatHoldStore) TryHold(ctx context.Context, params repository.HoldParams) (*repository.HoldResult, error) {
	positions := entity.SortPositions(params.Positions)
	var result *repository.HoldResult

	err := r.db.with(r.locked, func(s *state) error {
		var conflicts, stale []entity.Position
		for _, p := range positions {
			hold, ok := s.holds[holdKey{params.ScheduleID, p}]
			if !ok {
				continue
			}
			if hold.IsStale(params.Now) {
				stale = append(stale, p)
			} else {
				conflicts = append(conflicts, p)
			}
		}
		if len(conflicts) > 0 {
			return &repository.ConflictError{Positions: conflicts}
		}

		holder := params.HolderUserID
		lease := params.LeaseExpiresAt
		holds := make([]*entity.SeatHold, len(positions))
		for i, p := range positions {
			hold := &entity.SeatHold{
				Timestamps:     entity.Timestamps{CreatedAt: params.Now, UpdatedAt: params.Now},
				ScheduleID:     params.ScheduleID,
				Position:       p,
				Grade:          params.Grades[p],
				Status:         entity.SeatHoldStatusHeld,
				HolderUserID:   &holder,
				LeaseExpiresAt: &lease,
			}
			s.holds[holdKey{params.ScheduleID, p}] = hold
			holds[i] = copyHold(hold)
		}

		result = &repository.HoldResult{Holds: holds, Reclaimed: stale}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *seatHoldStore) Release(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) ([]entity.Position, error) {
	var released []entity.Position
	err := r.db.with(r.locked, func(s *state) error {
		for _, p := range entity.SortPositions(positions) {
			key := holdKey{scheduleID, p}
			if _, ok := s.holds[key]; ok {
				delete(s.holds, key)
				released = append(released, p)
			}
		}
		return nil
	})
	return released, err
}

func (r *seatHoldStore) Confirm(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) error {
	return r.db.with(r.locked, func(s *state) error {
		sorted := entity.SortPositions(positions)
		for _, p := range sorted {
			hold, ok := s.holds[holdKey{scheduleID, p}]
			if !ok || hold.Status != entity.SeatHoldStatusHeld || hold.IsStale(now) {
				return fmt.Errorf("confirm seat %s of schedule %s: %w", p, scheduleID, repository.ErrNotHeld)
			}
		}
		for _, p := range sorted {
			hold := s.holds[holdKey{scheduleID, p}]
			hold.Status = entity.SeatHoldStatusReserved
			hold.LeaseExpiresAt = nil
			hold.UpdatedAt = now
		}
		return nil
	})
}

func (r *seatHoldStore) Extend(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, leaseExpiresAt, now time.Time) error {
	return r.db.with(r.locked, func(s *state) error {
		sorted := entity.SortPositions(positions)
		for _, p := range sorted {
			hold, ok := s.holds[holdKey{scheduleID, p}]
			if !ok || hold.Status != entity.SeatHoldStatusHeld || hold.IsStale(now) {
				return fmt.Errorf("extend seat %s of schedule %s: %w", p, scheduleID, repository.ErrNotHeld)
			}
		}
		for _, p := range sorted {
			hold := s.holds[holdKey{scheduleID, p}]
			lease := leaseExpiresAt
			hold.LeaseExpiresAt = &lease
			hold.UpdatedAt = now
		}
		return nil
	})
}

func (r *seatHoldStore) FindLiveBySchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) ([]*entity.SeatHold, error) {
	var holds []*entity.SeatHold
	err := r.db.with(r.locked, func(s *state) error {
		for key, hold := range s.holds {
			if key.scheduleID == scheduleID && hold.IsLive(now) {
				holds = append(holds, copyHold(hold))
			}
		}
		return nil
	})
	sortHolds(holds)
	return holds, err
}

func (r *seatHoldStore) FindOrphans(ctx context.Context, now time.Time, limit int) ([]*entity.SeatHold, error) {
	var holds []*entity.SeatHold
	err := r.db.with(r.locked, func(s *state) error {
		for key, hold := range s.holds {
			if hold.IsStale(now) && !s.hasPendingOwner(key) {
				holds = append(holds, copyHold(hold))
			}
		}
		return nil
	})
	sortHolds(holds)
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}
	return holds, err
}

func (r *seatHoldStore) ReleaseOrphans(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position, now time.Time) ([]entity.Position, error) {
	var released []entity.Position
	err := r.db.with(r.locked, func(s *state) error {
		for _, p := range entity.SortPositions(positions) {
			key := holdKey{scheduleID, p}
			hold, ok := s.holds[key]
			if !ok || !hold.IsStale(now) || s.hasPendingOwner(key) {
				continue
			}
			delete(s.holds, key)
			released = append(released, p)
		}
		return nil
	})
	return released, err
}

// hasPendingOwner reports whether a PENDING booking lists the seat in its ledger.
func (s *state) hasPendingOwner(key holdKey) bool {
	for bookingID, entries := range s.ledger {
		b, ok := s.bookings[bookingID]
		if !ok || b.Status != entity.BookingStatusPending {
			continue
		}
		for _, e := range entries {
			if e.ScheduleID == key.scheduleID && e.Position == key.position {
				return true
			}
		}
	}
	return false
}

func sortHolds(holds []*entity.SeatHold) {
	sort.Slice(holds, func(i, j int) bool {
		if holds[i].ScheduleID != holds[j].ScheduleID {
			return holds[i].ScheduleID.String() < holds[j].ScheduleID.String()
		}
		return holds[i].Position.Less(holds[j].Position)
	})
}
