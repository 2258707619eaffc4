package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/dto/request"
	"smarter-store/internal/dto/response"
	"smarter-store/internal/messaging"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	// Start holds the requested seats and creates a PENDING booking, atomically.
	Start(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	// Confirm is called by the payment flow. It never confirms after the lease.
	Confirm(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error)
	Cancel(ctx context.Context, bookingID, actorUserID uuid.UUID) (*response.BookingResponse, error)
	// Expire is reserved for the expiration sweeper.
	Expire(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error)
	ExtendHold(ctx context.Context, bookingID, actorUserID uuid.UUID, duration time.Duration) (*response.BookingResponse, error)

	GetBooking(ctx context.Context, bookingID, actorUserID uuid.UUID) (*response.BookingResponse, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
}

type bookingService struct {
	repo      *repository.Repository
	hold      utils.HoldConfig
	clock     clock.Clock
	events    SeatEventPublisher
	lifecycle messaging.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewBookingService(repo *repository.Repository, hold utils.HoldConfig, deps Dependencies, log *zap.Logger) BookingService {
	return &bookingService{
		repo:      repo,
		hold:      hold,
		clock:     deps.Clock,
		events:    deps.Events,
		lifecycle: deps.Lifecycle,
		metrics:   deps.Metrics,
		log:       log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) Start(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.metrics.HoldAttempts.WithLabelValues("invalid").Inc()
		return nil, invalidRequest("validation failed: %s", utils.FormatValidationErrors(errs))
	}

	scheduleID, err := uuid.Parse(req.ScheduleID)
	if err != nil {
		s.metrics.HoldAttempts.WithLabelValues("invalid").Inc()
		return nil, invalidRequest("invalid schedule ID %s", req.ScheduleID)
	}

	requested := make([]entity.Position, len(req.Seats))
	for i, seat := range req.Seats {
		requested[i] = entity.Position{Row: seat.Row, Column: seat.Column}
	}
	positions := entity.SortPositions(requested)

	switch {
	case len(positions) != len(requested):
		s.metrics.HoldAttempts.WithLabelValues("invalid").Inc()
		return nil, invalidRequest("duplicate seats in request")
	case len(positions) > s.hold.MaxSeats:
		s.metrics.HoldAttempts.WithLabelValues("invalid").Inc()
		return nil, invalidRequest("at most %d seats per booking, got %d", s.hold.MaxSeats, len(positions))
	}

	now := s.clock.Now()
	lease := now.Add(s.hold.Duration)

	booking := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrderID:    utils.GenerateOrderID(now),
		ScheduleID: scheduleID,
		UserID:     userID,
		Status:     entity.BookingStatusPending,
		SeatCount:  len(positions),
		ExpiresAt:  &lease,
		Version:    1,
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		// layout tidak boleh diganti selama hold berjalan
		if err := tx.SeatLayout.LockSchedule(ctx, scheduleID, false); err != nil {
			return err
		}
		grades, err := tx.SeatLayout.FindGrades(ctx, scheduleID, positions)
		if err != nil {
			return err
		}
		var unknown []entity.Position
		for _, p := range positions {
			if _, ok := grades[p]; !ok {
				unknown = append(unknown, p)
			}
		}
		if len(unknown) > 0 {
			return invalidRequest("seats %v are not part of schedule %s", unknown, scheduleID)
		}

		held, err := tx.SeatHold.TryHold(ctx, repository.HoldParams{
			ScheduleID:     scheduleID,
			Positions:      positions,
			Grades:         grades,
			HolderUserID:   userID,
			LeaseExpiresAt: lease,
			Now:            now,
		})
		if err != nil {
			return err
		}

		if err := tx.HoldLedger.DetachPositions(ctx, scheduleID, held.Reclaimed); err != nil {
			return err
		}

		if err := tx.Booking.Create(ctx, booking); err != nil {
			return err
		}

		entries := make([]*entity.HoldLedgerEntry, len(positions))
		for i, p := range positions {
			entries[i] = &entity.HoldLedgerEntry{
				BookingID:  booking.ID,
				ScheduleID: scheduleID,
				Position:   p,
				CreatedAt:  now,
			}
		}
		return tx.HoldLedger.CreateBatch(ctx, entries)
	})

	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			s.metrics.HoldAttempts.WithLabelValues("conflict").Inc()
			s.log.Info("Seat hold conflict",
				zap.String("schedule_id", scheduleID.String()),
				zap.String("user_id", userID.String()),
				zap.Any("seats", conflict.Positions),
			)
			return nil, err
		case errors.Is(err, ErrInvalidRequest):
			s.metrics.HoldAttempts.WithLabelValues("invalid").Inc()
			return nil, err
		default:
			s.metrics.HoldAttempts.WithLabelValues("error").Inc()
			s.log.Error("Failed to start booking",
				zap.Error(err),
				zap.String("schedule_id", scheduleID.String()),
				zap.String("user_id", userID.String()),
			)
			return nil, fmt.Errorf("start booking: %w", err)
		}
	}

	s.metrics.HoldAttempts.WithLabelValues("held").Inc()
	s.log.Info("Booking started",
		zap.String("booking_id", booking.ID.String()),
		zap.String("order_id", booking.OrderID),
		zap.String("user_id", userID.String()),
		zap.Int("seat_count", len(positions)),
		zap.Time("expires_at", lease),
	)

	s.notify(ctx, booking, broadcast.EventOccupied, messaging.BookingStarted, positions, now)

	resp := response.BookingToResponse(booking, positions)
	return &resp, nil
}

func (s *bookingService) Confirm(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error) {
	now := s.clock.Now()

	var (
		booking *entity.Booking
		seats   []entity.Position
		replay  bool
	)

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.LockByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound
		}
		booking = b

		switch b.Status {
		case entity.BookingStatusConfirmed:
			// payment retries land here
			entries, err := tx.HoldLedger.FindByBookingID(ctx, b.ID)
			if err != nil {
				return err
			}
			seats = entity.LedgerPositions(entries)
			replay = true
			return nil
		case entity.BookingStatusExpired, entity.BookingStatusCancelled:
			return ErrAlreadyTerminal
		}

		if b.LeaseElapsed(now) {
			return ErrExpired
		}

		positions, err := tx.HoldLedger.FindPositionsForUpdate(ctx, b.ID, b.ScheduleID)
		if err != nil {
			return err
		}
		if len(positions) != b.SeatCount {
			// a seat was reclaimed after a lease elapsed on another clock
			return ErrExpired
		}

		if err := tx.SeatHold.Confirm(ctx, b.ScheduleID, positions, now); err != nil {
			return err
		}

		b.Status = entity.BookingStatusConfirmed
		b.ConfirmedAt = &now
		b.ExpiresAt = nil
		b.UpdatedAt = now
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		seats = positions
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			s.metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusConfirmed), "expired").Inc()
			s.log.Warn("Confirm after lease expiry, refund required",
				zap.String("booking_id", bookingID.String()),
				zap.Time("now", now),
			)
			s.publishLifecycle(ctx, messaging.NewBookingEvent(messaging.BookingRefundRequired, booking, nil, now))
			return nil, fmt.Errorf("confirm booking %s: %w", bookingID, ErrExpired)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyTerminal):
			s.metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusConfirmed), "rejected").Inc()
			return nil, fmt.Errorf("confirm booking %s: %w", bookingID, err)
		default:
			s.metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusConfirmed), "error").Inc()
			s.log.Error("Failed to confirm booking",
				zap.Error(err),
				zap.String("booking_id", bookingID.String()),
			)
			return nil, fmt.Errorf("confirm booking %s: %w", bookingID, err)
		}
	}

	if !replay {
		s.metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusConfirmed), "ok").Inc()
		s.log.Info("Booking confirmed",
			zap.String("booking_id", booking.ID.String()),
			zap.Int("seat_count", len(seats)),
		)
		s.notify(ctx, booking, broadcast.EventConfirmed, messaging.BookingConfirmed, seats, now)
	}

	resp := response.BookingToResponse(booking, seats)
	return &resp, nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID, actorUserID uuid.UUID) (*response.BookingResponse, error) {
	now := s.clock.Now()

	booking, released, err := s.release(ctx, bookingID, entity.BookingStatusCancelled, now, func(b *entity.Booking) error {
		if b.UserID != actorUserID {
			return ErrForbidden
		}
		if b.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel booking %s: %w", bookingID, err)
	}

	s.log.Info("Booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", actorUserID.String()),
		zap.Int("seats_released", len(released)),
	)
	s.notify(ctx, booking, broadcast.EventReleased, messaging.BookingCancelled, released, now)

	resp := response.BookingToResponse(booking, released)
	return &resp, nil
}

func (s *bookingService) Expire(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error) {
	now := s.clock.Now()

	booking, released, err := s.release(ctx, bookingID, entity.BookingStatusExpired, now, func(b *entity.Booking) error {
		if b.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}
		if !b.LeaseElapsed(now) {
			return ErrLeaseActive
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire booking %s: %w", bookingID, err)
	}

	s.log.Info("Booking expired",
		zap.String("booking_id", booking.ID.String()),
		zap.Int("seats_released", len(released)),
	)
	s.notify(ctx, booking, broadcast.EventReleased, messaging.BookingExpired, released, now)

	resp := response.BookingToResponse(booking, released)
	return &resp, nil
}

// release moves a locked PENDING booking to status after check approves it,
// deleting its seat holds and ledger in the same unit of work.
func (s *bookingService) release(
	ctx context.Context,
	bookingID uuid.UUID,
	status entity.BookingStatus,
	now time.Time,
	check func(b *entity.Booking) error,
) (*entity.Booking, []entity.Position, error) {
	var (
		booking  *entity.Booking
		released []entity.Position
	)

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.LockByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound
		}
		if err := check(b); err != nil {
			return err
		}

		positions, err := tx.HoldLedger.FindPositionsForUpdate(ctx, b.ID, b.ScheduleID)
		if err != nil {
			return err
		}

		released, err = tx.SeatHold.Release(ctx, b.ScheduleID, positions)
		if err != nil {
			return err
		}
		if err := tx.HoldLedger.DeleteByBookingID(ctx, b.ID); err != nil {
			return err
		}

		b.Status = status
		b.UpdatedAt = now
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		booking = b
		return nil
	})

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrLeaseActive):
		outcome = "rejected"
	default:
		outcome = "error"
		s.log.Error("Failed to release booking",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.String("status", string(status)),
		)
	}
	s.metrics.BookingTransitions.WithLabelValues(string(status), outcome).Inc()

	if err != nil {
		return nil, nil, err
	}
	return booking, released, nil
}

func (s *bookingService) ExtendHold(ctx context.Context, bookingID, actorUserID uuid.UUID, duration time.Duration) (*response.BookingResponse, error) {
	if duration <= 0 {
		duration = s.hold.Duration
	}

	now := s.clock.Now()
	lease := now.Add(duration)

	var (
		booking *entity.Booking
		seats   []entity.Position
	)

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.LockByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound
		}
		if b.UserID != actorUserID {
			return ErrForbidden
		}
		if b.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}
		if b.LeaseElapsed(now) {
			return ErrExpired
		}

		positions, err := tx.HoldLedger.FindPositionsForUpdate(ctx, b.ID, b.ScheduleID)
		if err != nil {
			return err
		}
		if len(positions) != b.SeatCount {
			return ErrExpired
		}
		// lease cuma bisa maju
		if b.ExpiresAt != nil && lease.Before(*b.ExpiresAt) {
			lease = *b.ExpiresAt
		}

		if err := tx.SeatHold.Extend(ctx, b.ScheduleID, positions, lease, now); err != nil {
			return err
		}

		b.ExpiresAt = &lease
		b.UpdatedAt = now
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		booking = b
		seats = positions
		return nil
	})
	if err != nil {
		if !isStateError(err) {
			s.log.Error("Failed to extend hold",
				zap.Error(err),
				zap.String("booking_id", bookingID.String()),
			)
		}
		return nil, fmt.Errorf("extend booking %s: %w", bookingID, err)
	}

	s.log.Info("Booking hold extended",
		zap.String("booking_id", booking.ID.String()),
		zap.Time("expires_at", lease),
	)

	resp := response.BookingToResponse(booking, seats)
	return &resp, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID, actorUserID uuid.UUID) (*response.BookingResponse, error) {
	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, err)
	}
	if booking == nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, ErrNotFound)
	}
	if booking.UserID != actorUserID {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, ErrForbidden)
	}

	entries, err := s.repo.HoldLedger.FindByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("get seats of booking %s: %w", bookingID, err)
	}

	resp := response.BookingToResponse(booking, entity.LedgerPositions(entries))
	return &resp, nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get user bookings",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("page", req.Page),
			zap.Int("per_page", req.PerPage),
		)
		return nil, fmt.Errorf("get user bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByUserID(ctx, userID)
	if err != nil {
		s.log.Error("Failed to count user bookings", zap.Error(err))
		return nil, fmt.Errorf("count user bookings: %w", err)
	}

	data := make([]response.BookingResponse, len(bookings))
	for i, booking := range bookings {
		entries, err := s.repo.HoldLedger.FindByBookingID(ctx, booking.ID)
		if err != nil {
			return nil, fmt.Errorf("get seats of booking %s: %w", booking.ID, err)
		}
		data[i] = response.BookingToResponse(booking, entity.LedgerPositions(entries))
	}

	return response.NewPaginatedResponse(data, req.PageNumber(), limit, total), nil
}

// notify runs after commit. Neither publisher can fail the operation.
func (s *bookingService) notify(
	ctx context.Context,
	b *entity.Booking,
	seatEvent broadcast.EventType,
	lifecycle messaging.BookingEventType,
	seats []entity.Position,
	now time.Time,
) {
	if len(seats) > 0 {
		s.events.Publish(ctx, broadcast.Event{
			Type:       seatEvent,
			ScheduleID: b.ScheduleID,
			Seats:      seats,
			At:         now,
		})
	}
	s.publishLifecycle(ctx, messaging.NewBookingEvent(lifecycle, b, seats, now))
}

func (s *bookingService) publishLifecycle(ctx context.Context, event messaging.BookingEvent) {
	if err := s.lifecycle.PublishBookingEvent(ctx, event); err != nil {
		s.log.Warn("Failed to publish booking lifecycle event",
			zap.Error(err),
			zap.String("booking_id", event.BookingID),
			zap.String("type", string(event.Type)),
		)
	}
}

func isStateError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrExpired)
}
