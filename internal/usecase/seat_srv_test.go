package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/dto/request"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetLayout(t *testing.T) {
	f := newFixture(t)

	layout, err := f.service.Seat.GetLayout(context.Background(), f.scheduleID)
	require.NoError(t, err)
	require.Len(t, layout.Seats, 50)
	require.Equal(t, 1, layout.Seats[0].Row)
	require.Equal(t, "VIP", layout.Seats[0].Grade)

	_, err = f.service.Seat.GetLayout(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrLayoutNotFound)
}

func TestUpdateLayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scheduleID := uuid.New()

	layout, err := f.service.Seat.UpdateLayout(ctx, scheduleID, &request.UpdateLayoutRequest{
		Seats: []request.LayoutSeat{
			{Row: 1, Column: 2, Grade: "SWEETBOX"},
			{Row: 1, Column: 1, Grade: "SWEETBOX"},
		},
	})
	require.NoError(t, err)
	require.Len(t, layout.Seats, 2)
	require.Equal(t, 1, layout.Seats[0].Column)

	_, err = f.service.Seat.UpdateLayout(ctx, scheduleID, &request.UpdateLayoutRequest{
		Seats: []request.LayoutSeat{
			{Row: 1, Column: 1, Grade: "A"},
			{Row: 1, Column: 1, Grade: "B"},
		},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.Seat.UpdateLayout(ctx, scheduleID, &request.UpdateLayoutRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateLayout_RefusedWhileSeatsOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Booking.Start(ctx, uuid.New(), f.startReq(pos(1, 1)))
	require.NoError(t, err)

	replacement := &request.UpdateLayoutRequest{
		Seats: []request.LayoutSeat{{Row: 1, Column: 1, Grade: "REGULAR"}},
	}
	_, err = f.service.Seat.UpdateLayout(ctx, f.scheduleID, replacement)
	require.ErrorIs(t, err, ErrInvalidRequest)

	layout, err := f.service.Seat.GetLayout(ctx, f.scheduleID)
	require.NoError(t, err)
	require.Len(t, layout.Seats, 50, "layout unchanged")

	// once the hold is stale the layout may change
	f.clock.Advance(holdDuration + time.Second)
	_, err = f.service.Seat.UpdateLayout(ctx, f.scheduleID, replacement)
	require.NoError(t, err)
}

func TestReleaseOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a hold left behind without a booking, e.g. by a crashed writer
	_, err := f.repo.SeatHold.TryHold(ctx, repository.HoldParams{
		ScheduleID:     f.scheduleID,
		Positions:      []entity.Position{pos(4, 4)},
		HolderUserID:   uuid.New(),
		LeaseExpiresAt: t0.Add(time.Minute),
		Now:            t0,
	})
	require.NoError(t, err)

	// a pending booking owns its stale hold until it is expired
	_, err = f.service.Booking.Start(ctx, uuid.New(), f.startReq(pos(4, 5)))
	require.NoError(t, err)

	released, err := f.service.Seat.ReleaseOrphans(ctx, 100)
	require.NoError(t, err)
	require.Zero(t, released, "orphan lease still running")

	f.clock.Advance(holdDuration + time.Second)
	released, err = f.service.Seat.ReleaseOrphans(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	holds, err := f.repo.SeatHold.FindOrphans(ctx, f.clock.Now(), 100)
	require.NoError(t, err)
	require.Empty(t, holds)

	events := f.events.all()
	last := events[len(events)-1]
	require.Equal(t, broadcast.EventReleased, last.Type)
	require.Equal(t, []entity.Position{pos(4, 4)}, last.Seats)
}

// callLog records store calls made inside units of work, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	calls := l.calls
	l.calls = nil
	return calls
}

type loggedLayout struct {
	repository.SeatLayoutRepository
	log *callLog
}

func (r loggedLayout) LockSchedule(ctx context.Context, scheduleID uuid.UUID, exclusive bool) error {
	if exclusive {
		r.log.add("lock exclusive")
	} else {
		r.log.add("lock shared")
	}
	return r.SeatLayoutRepository.LockSchedule(ctx, scheduleID, exclusive)
}

func (r loggedLayout) FindGrades(ctx context.Context, scheduleID uuid.UUID, positions []entity.Position) (map[entity.Position]string, error) {
	r.log.add("read layout")
	return r.SeatLayoutRepository.FindGrades(ctx, scheduleID, positions)
}

func (r loggedLayout) Replace(ctx context.Context, scheduleID uuid.UUID, seats []*entity.LayoutSeat) error {
	r.log.add("replace layout")
	return r.SeatLayoutRepository.Replace(ctx, scheduleID, seats)
}

type loggedHolds struct {
	repository.SeatHoldRepository
	log *callLog
}

func (r loggedHolds) TryHold(ctx context.Context, params repository.HoldParams) (*repository.HoldResult, error) {
	r.log.add("hold")
	return r.SeatHoldRepository.TryHold(ctx, params)
}

func (r loggedHolds) FindLiveBySchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) ([]*entity.SeatHold, error) {
	r.log.add("read holds")
	return r.SeatHoldRepository.FindLiveBySchedule(ctx, scheduleID, now)
}

type loggedTx struct {
	inner *repository.Repository
	log   *callLog
}

func (t loggedTx) WithTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	return t.inner.WithTx(ctx, func(tx *repository.Repository) error {
		return fn(wrapLogged(tx, nil, t.log))
	})
}

func wrapLogged(repo *repository.Repository, tx repository.TxRunner, log *callLog) *repository.Repository {
	return repository.New(
		loggedHolds{repo.SeatHold, log},
		repo.Booking,
		repo.HoldLedger,
		loggedLayout{repo.SeatLayout, log},
		tx,
		nil,
	)
}

func TestLayoutLock_TakenBeforeLayoutAndHoldsAreRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := &callLog{}

	config := &utils.Config{Hold: utils.HoldConfig{Duration: holdDuration, MaxSeats: 4}}
	service := NewService(wrapLogged(f.repo, loggedTx{f.repo, log}, log), config, Dependencies{
		Clock:     f.clock,
		Events:    f.events,
		Lifecycle: f.lifecycle,
		Metrics:   metrics.New(),
	}, zap.NewNop())

	_, err := service.Booking.Start(ctx, uuid.New(), f.startReq(pos(2, 2)))
	require.NoError(t, err)
	require.Equal(t, []string{"lock shared", "read layout", "hold"}, log.take())

	_, err = service.Seat.UpdateLayout(ctx, uuid.New(), &request.UpdateLayoutRequest{
		Seats: []request.LayoutSeat{{Row: 1, Column: 1, Grade: "REGULAR"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"lock exclusive", "read holds", "replace layout"}, log.take())
}
