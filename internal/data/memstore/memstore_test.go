package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func holdParams(scheduleID, user uuid.UUID, now time.Time, seats ...entity.Position) repository.HoldParams {
	return repository.HoldParams{
		ScheduleID:     scheduleID,
		Positions:      seats,
		HolderUserID:   user,
		LeaseExpiresAt: now.Add(10 * time.Minute),
		Now:            now,
	}
}

func TestTryHold_ConflictListsTakenSeats(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	a, b, c := entity.Position{Row: 1, Column: 1}, entity.Position{Row: 1, Column: 2}, entity.Position{Row: 1, Column: 3}

	_, err := repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, a, b))
	require.NoError(t, err)

	_, err = repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, b, c))
	var conflict *repository.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []entity.Position{b}, conflict.Positions)
	assert.ErrorIs(t, err, repository.ErrSeatConflict)

	// all or nothing: c stays free
	live, err := repo.SeatHold.FindLiveBySchedule(ctx, scheduleID, t0)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, a, live[0].Position)
	assert.Equal(t, b, live[1].Position)
}

func TestTryHold_ReclaimsStaleHolds(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	seat := entity.Position{Row: 2, Column: 5}

	_, err := repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, seat))
	require.NoError(t, err)

	// exactly at the lease boundary the hold is still live
	_, err = repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0.Add(10*time.Minute), seat))
	require.ErrorIs(t, err, repository.ErrSeatConflict)

	later := t0.Add(10*time.Minute + time.Millisecond)
	user := uuid.New()
	res, err := repo.SeatHold.TryHold(ctx, holdParams(scheduleID, user, later, seat))
	require.NoError(t, err)
	assert.Equal(t, []entity.Position{seat}, res.Reclaimed)
	require.Len(t, res.Holds, 1)
	assert.Equal(t, user, *res.Holds[0].HolderUserID)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	seat := entity.Position{Row: 4, Column: 4}
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, seat)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	live, err := repo.SeatHold.FindLiveBySchedule(ctx, scheduleID, t0)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestWithTx_RejectsCancelledContext(t *testing.T) {
	repo := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithTx(ctx, func(*repository.Repository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestConfirmAndExtend_RequireLiveHeldSeats(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	seat := entity.Position{Row: 1, Column: 9}

	_, err := repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, seat))
	require.NoError(t, err)

	err = repo.SeatHold.Extend(ctx, scheduleID, []entity.Position{seat}, t0.Add(20*time.Minute), t0.Add(11*time.Minute))
	require.ErrorIs(t, err, repository.ErrNotHeld)

	require.NoError(t, repo.SeatHold.Confirm(ctx, scheduleID, []entity.Position{seat}, t0.Add(time.Minute)))

	err = repo.SeatHold.Confirm(ctx, scheduleID, []entity.Position{seat}, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, repository.ErrNotHeld)

	// reserved seats never go stale
	live, err := repo.SeatHold.FindLiveBySchedule(ctx, scheduleID, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, entity.SeatHoldStatusReserved, live[0].Status)
	assert.Nil(t, live[0].LeaseExpiresAt)
}

func TestBookingUpdate_ChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := New()
	booking := &entity.Booking{
		Base:   entity.Base{ID: uuid.New(), CreatedAt: t0},
		Status: entity.BookingStatusPending,
	}
	require.NoError(t, repo.Booking.Create(ctx, booking))
	assert.Equal(t, 1, booking.Version)

	first, err := repo.Booking.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	second, err := repo.Booking.FindByID(ctx, booking.ID)
	require.NoError(t, err)

	first.Status = entity.BookingStatusCancelled
	require.NoError(t, repo.Booking.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = entity.BookingStatusExpired
	assert.ErrorIs(t, repo.Booking.Update(ctx, second), repository.ErrVersionMismatch)

	stored, err := repo.Booking.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status)
}

func TestFindOrphans_SkipsSeatsOwnedByPendingBooking(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	owned, orphan := entity.Position{Row: 1, Column: 1}, entity.Position{Row: 1, Column: 2}

	_, err := repo.SeatHold.TryHold(ctx, holdParams(scheduleID, uuid.New(), t0, owned, orphan))
	require.NoError(t, err)

	booking := &entity.Booking{
		Base:       entity.Base{ID: uuid.New(), CreatedAt: t0},
		ScheduleID: scheduleID,
		Status:     entity.BookingStatusPending,
		SeatCount:  1,
	}
	require.NoError(t, repo.Booking.Create(ctx, booking))
	require.NoError(t, repo.HoldLedger.CreateBatch(ctx, []*entity.HoldLedgerEntry{
		{BookingID: booking.ID, ScheduleID: scheduleID, Position: owned, CreatedAt: t0},
	}))

	later := t0.Add(time.Hour)
	orphans, err := repo.SeatHold.FindOrphans(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan, orphans[0].Position)

	released, err := repo.SeatHold.ReleaseOrphans(ctx, scheduleID, []entity.Position{owned, orphan}, later)
	require.NoError(t, err)
	assert.Equal(t, []entity.Position{orphan}, released)
}

func TestDetachPositions_RemovesPreviousOwnerEntries(t *testing.T) {
	ctx := context.Background()
	repo := New()
	scheduleID := uuid.New()
	bookingID := uuid.New()
	a, b := entity.Position{Row: 1, Column: 1}, entity.Position{Row: 1, Column: 2}

	require.NoError(t, repo.HoldLedger.CreateBatch(ctx, []*entity.HoldLedgerEntry{
		{BookingID: bookingID, ScheduleID: scheduleID, Position: a},
		{BookingID: bookingID, ScheduleID: scheduleID, Position: b},
	}))

	require.NoError(t, repo.HoldLedger.DetachPositions(ctx, scheduleID, []entity.Position{a}))

	positions, err := repo.HoldLedger.FindPositionsForUpdate(ctx, bookingID, scheduleID)
	require.NoError(t, err)
	assert.Equal(t, []entity.Position{b}, positions)
}
