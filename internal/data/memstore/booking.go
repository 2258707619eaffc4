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

type bookingStore struct {
	db     *DB
	locked bool
}

func (r *bookingStore) Create(ctx context.Context, booking *entity.Booking) error {
	return r.db.with(r.locked, func(s *state) error {
		if _, exists := s.bookings[booking.ID]; exists {
			return fmt.Errorf("create booking %s: duplicate id", booking.ID)
		}
		if booking.Version == 0 {
			booking.Version = 1
		}
		s.bookings[booking.ID] = copyBooking(booking)
		return nil
	})
}

func (r *bookingStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	var booking *entity.Booking
	err := r.db.with(r.locked, func(s *state) error {
		if b, ok := s.bookings[id]; ok {
			booking = copyBooking(b)
		}
		return nil
	})
	return booking, err
}

// LockByID is FindByID: inside a unit of work the store mutex is the lock.
func (r *bookingStore) LockByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *bookingStore) Update(ctx context.Context, booking *entity.Booking) error {
	return r.db.with(r.locked, func(s *state) error {
		current, ok := s.bookings[booking.ID]
		if !ok || current.Version != booking.Version {
			return fmt.Errorf("update booking %s at version %d: %w", booking.ID, booking.Version, repository.ErrVersionMismatch)
		}
		booking.Version++
		s.bookings[booking.ID] = copyBooking(booking)
		return nil
	})
}

func (r *bookingStore) userBookings(s *state, userID uuid.UUID) []*entity.Booking {
	var bookings []*entity.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings
}

func (r *bookingStore) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	var page []*entity.Booking
	err := r.db.with(r.locked, func(s *state) error {
		all := r.userBookings(s, userID)
		if offset >= len(all) {
			return nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		for _, b := range all[offset:end] {
			page = append(page, copyBooking(b))
		}
		return nil
	})
	return page, err
}

func (r *bookingStore) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.with(r.locked, func(s *state) error {
		count = int64(len(r.userBookings(s, userID)))
		return nil
	})
	return count, err
}

func (r *bookingStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.with(r.locked, func(s *state) error {
		var expired []*entity.Booking
		for _, b := range s.bookings {
			if b.Status == entity.BookingStatusPending && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
				expired = append(expired, b)
			}
		}

		sort.Slice(expired, func(i, j int) bool {
			return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt)
		})
		if limit > 0 && len(expired) > limit {
			expired = expired[:limit]
		}

		for _, b := range expired {
			ids = append(ids, b.ID)
		}
		return nil
	})
	return ids, err
}
