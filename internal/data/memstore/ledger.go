package memstore

import (
	"context"
	"sort"

	"smarter-store/internal/data/entity"

	"github.com/google/uuid"
)

type ledgerStore struct {
	db     *DB
	locked bool
}

func (r *ledgerStore) CreateBatch(ctx context.Context, entries []*entity.HoldLedgerEntry) error {
	return r.db.with(r.locked, func(s *state) error {
		for _, e := range entries {
			v := *e
			s.ledger[e.BookingID] = append(s.ledger[e.BookingID], &v)
		}
		return nil
	})
}

func (r *ledgerStore) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.HoldLedgerEntry, error) {
	var entries []*entity.HoldLedgerEntry
	err := r.db.with(r.locked, func(s *state) error {
		for _, e := range s.ledger[bookingID] {
			v := *e
			entries = append(entries, &v)
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position.Less(entries[j].Position)
	})
	return entries, err
}

func (r *ledgerStore) FindPositionsForUpdate(ctx context.Context, bookingID, scheduleID uuid.UUID) ([]entity.Position, error) {
	entries, err := r.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return entity.SortPositions(entity.LedgerPositions(entries)), nil
}

func (r *ledgerStore) DeleteByBookingID(ctx context.Context, bookingID uuid.UUID) error {
	return r.db.with(r.locked, func(s *state) error {
		delete(s.ledger, bookingID)
		return nil
	})
}

func (r *ledgerStore) DetachPositions(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error {
	return r.db.with(r.locked, func(s *state) error {
		s.removeEntries(scheduleID, positions, func(uuid.UUID) bool { return true })
		return nil
	})
}

func (r *ledgerStore) DeleteDangling(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) error {
	return r.db.with(r.locked, func(s *state) error {
		s.removeEntries(scheduleID, positions, func(bookingID uuid.UUID) bool {
			b, ok := s.bookings[bookingID]
			return !ok || (b.Status != entity.BookingStatusPending && b.Status != entity.BookingStatusConfirmed)
		})
		return nil
	})
}

// removeEntries drops ledger entries at positions whose booking matches.
func (s *state) removeEntries(scheduleID uuid.UUID, positions []entity.Position, match func(bookingID uuid.UUID) bool) {
	targets := make(map[entity.Position]struct{}, len(positions))
	for _, p := range positions {
		targets[p] = struct{}{}
	}

	for bookingID, entries := range s.ledger {
		if !match(bookingID) {
			continue
		}
		kept := entries[:0]
		for _, e := range entries {
			if _, hit := targets[e.Position]; hit && e.ScheduleID == scheduleID {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.ledger, bookingID)
		} else {
			s.ledger[bookingID] = kept
		}
	}
}
