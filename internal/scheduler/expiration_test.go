package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/memstore"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/dto/request"
	"smarter-store/internal/dto/response"
	"smarter-store/internal/usecase"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

type env struct {
	repo       *repository.Repository
	clock      *clock.Fake
	service    *usecase.Service
	metrics    *metrics.Metrics
	scheduleID uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		repo:       memstore.New(),
		clock:      clock.NewFake(t0),
		metrics:    metrics.New(),
		scheduleID: uuid.New(),
	}
	config := &utils.Config{Hold: utils.HoldConfig{Duration: 10 * time.Minute, MaxSeats: 4}}
	e.service = usecase.NewService(e.repo, config, usecase.Dependencies{
		Clock:   e.clock,
		Metrics: e.metrics,
	}, zap.NewNop())

	var seats []*entity.LayoutSeat
	for col := 1; col <= 10; col++ {
		seats = append(seats, &entity.LayoutSeat{
			ScheduleID: e.scheduleID,
			Position:   entity.Position{Row: 1, Column: col},
			Grade:      "REGULAR",
		})
	}
	require.NoError(t, e.repo.SeatLayout.Replace(context.Background(), e.scheduleID, seats))
	return e
}

func (e *env) start(t *testing.T, col int) uuid.UUID {
	t.Helper()
	b, err := e.service.Booking.Start(context.Background(), uuid.New(), &request.CreateBookingRequest{
		ScheduleID: e.scheduleID.String(),
		Seats:      []request.SeatPosition{{Row: 1, Column: col}},
	})
	require.NoError(t, err)
	return uuid.MustParse(b.ID)
}

func (e *env) sweeper(expirer Expirer) *ExpirationSweeper {
	return NewExpirationSweeper(e.repo.Booking, expirer, e.service.Seat, time.Minute, e.clock, e.metrics, zap.NewNop())
}

func (e *env) status(t *testing.T, id uuid.UUID) entity.BookingStatus {
	t.Helper()
	b, err := e.repo.Booking.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

// flakyExpirer fails every call for one booking.
type flakyExpirer struct {
	next    Expirer
	failing uuid.UUID
	calls   int
}

func (f *flakyExpirer) Expire(ctx context.Context, id uuid.UUID) (*response.BookingResponse, error) {
	f.calls++
	if id == f.failing {
		return nil, errors.New("store unavailable")
	}
	return f.next.Expire(ctx, id)
}

func TestRunOnce_ExpiresOnlyElapsedBookings(t *testing.T) {
	e := newEnv(t)
	early := e.start(t, 1)
	e.clock.Advance(5 * time.Minute)
	late := e.start(t, 2)

	e.clock.Set(t0.Add(10*time.Minute + time.Second))
	res := e.sweeper(e.service.Booking).RunOnce(context.Background())

	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, entity.BookingStatusExpired, e.status(t, early))
	assert.Equal(t, entity.BookingStatusPending, e.status(t, late))

	live, err := e.repo.SeatHold.FindLiveBySchedule(context.Background(), e.scheduleID, e.clock.Now())
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, 2, live[0].Position.Column)
}

func TestRunOnce_ContinuesPastFailures(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, 1)
	b := e.start(t, 2)
	c := e.start(t, 3)

	e.clock.Advance(11 * time.Minute)
	expirer := &flakyExpirer{next: e.service.Booking, failing: b}
	res := e.sweeper(expirer).RunOnce(context.Background())

	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, entity.BookingStatusExpired, e.status(t, a))
	assert.Equal(t, entity.BookingStatusPending, e.status(t, b))
	assert.Equal(t, entity.BookingStatusExpired, e.status(t, c))

	// the failed booking is picked up again on the next run
	expirer.failing = uuid.Nil
	res = e.sweeper(expirer).RunOnce(context.Background())
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, entity.BookingStatusExpired, e.status(t, b))
}

func TestRunOnce_SkipsBookingsThatWonTheRace(t *testing.T) {
	e := newEnv(t)
	id := e.start(t, 4)
	e.clock.Advance(11 * time.Minute)

	// confirmed between the query and the expiry attempt
	racing := &racingExpirer{next: e.service.Booking, before: func() {
		e.clock.Set(t0.Add(time.Minute))
		_, err := e.service.Booking.Confirm(context.Background(), id)
		require.NoError(t, err)
		e.clock.Set(t0.Add(11 * time.Minute))
	}}
	res := e.sweeper(racing).RunOnce(context.Background())

	assert.Equal(t, 0, res.Expired)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, entity.BookingStatusConfirmed, e.status(t, id))
}

type racingExpirer struct {
	next   Expirer
	before func()
}

func (r *racingExpirer) Expire(ctx context.Context, id uuid.UUID) (*response.BookingResponse, error) {
	r.before()
	return r.next.Expire(ctx, id)
}

func TestRunOnce_ReleasesOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.repo.SeatHold.TryHold(ctx, repository.HoldParams{
		ScheduleID:     e.scheduleID,
		Positions:      []entity.Position{{Row: 1, Column: 9}},
		HolderUserID:   uuid.New(),
		LeaseExpiresAt: t0.Add(time.Minute),
		Now:            t0,
	})
	require.NoError(t, err)

	e.clock.Advance(2 * time.Minute)
	res := e.sweeper(e.service.Booking).RunOnce(ctx)

	assert.Equal(t, 1, res.Orphans)
	live, err := e.repo.SeatHold.FindOrphans(ctx, e.clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRun_StopsWithContext(t *testing.T) {
	e := newEnv(t)
	id := e.start(t, 5)
	e.clock.Advance(11 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.sweeper(e.service.Booking).Run(ctx) }()

	// the first sweep runs immediately
	require.Eventually(t, func() bool {
		return e.status(t, id) == entity.BookingStatusExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
