package usecase

import (
	"context"
	"errors"
	"fmt"

	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/dto/request"
	"smarter-store/internal/dto/response"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SeatService interface {
	// GetSeatStatus returns every HELD and RESERVED seat; stale holds are free.
	GetSeatStatus(ctx context.Context, scheduleID uuid.UUID) (*response.SeatStatusResponse, error)
	GetLayout(ctx context.Context, scheduleID uuid.UUID) (*response.LayoutResponse, error)
	UpdateLayout(ctx context.Context, scheduleID uuid.UUID, req *request.UpdateLayoutRequest) (*response.LayoutResponse, error)
	// ReleaseOrphans deletes stale holds no PENDING booking owns.
	ReleaseOrphans(ctx context.Context, limit int) (int, error)
}

type seatService struct {
	repo    *repository.Repository
	clock   clock.Clock
	events  SeatEventPublisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewSeatService(repo *repository.Repository, deps Dependencies, log *zap.Logger) SeatService {
	return &seatService{
		repo:    repo,
		clock:   deps.Clock,
		events:  deps.Events,
		metrics: deps.Metrics,
		log:     log.With(zap.String("service", "seat")),
	}
}

func (s *seatService) GetSeatStatus(ctx context.Context, scheduleID uuid.UUID) (*response.SeatStatusResponse, error) {
	now := s.clock.Now()

	holds, err := s.repo.SeatHold.FindLiveBySchedule(ctx, scheduleID, now)
	if err != nil {
		s.log.Error("Failed to get seat status",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return nil, fmt.Errorf("get seat status of schedule %s: %w", scheduleID, err)
	}

	seats := make([]response.SeatResponse, len(holds))
	for i, h := range holds {
		seats[i] = response.SeatHoldToResponse(h)
	}

	return &response.SeatStatusResponse{
		ScheduleID: scheduleID.String(),
		Seats:      seats,
		AsOf:       now,
	}, nil
}

func (s *seatService) GetLayout(ctx context.Context, scheduleID uuid.UUID) (*response.LayoutResponse, error) {
	seats, err := s.repo.SeatLayout.FindBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("get layout of schedule %s: %w", scheduleID, err)
	}
	if len(seats) == 0 {
		return nil, fmt.Errorf("get layout of schedule %s: %w", scheduleID, ErrLayoutNotFound)
	}
	return layoutResponse(scheduleID, seats), nil
}

// UpdateLayout replaces the seat grid. It is refused while any seat of the
// schedule is held or reserved, since grades are stamped on holds.
func (s *seatService) UpdateLayout(ctx context.Context, scheduleID uuid.UUID, req *request.UpdateLayoutRequest) (*response.LayoutResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, invalidRequest("validation failed: %s", utils.FormatValidationErrors(errs))
	}

	seen := make(map[entity.Position]struct{}, len(req.Seats))
	seats := make([]*entity.LayoutSeat, 0, len(req.Seats))
	for _, seat := range req.Seats {
		p := entity.Position{Row: seat.Row, Column: seat.Column}
		if _, dup := seen[p]; dup {
			return nil, invalidRequest("seat %s listed twice", p)
		}
		seen[p] = struct{}{}
		seats = append(seats, &entity.LayoutSeat{ScheduleID: scheduleID, Position: p, Grade: seat.Grade})
	}

	now := s.clock.Now()
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.SeatLayout.LockSchedule(ctx, scheduleID, true); err != nil {
			return err
		}
		live, err := tx.SeatHold.FindLiveBySchedule(ctx, scheduleID, now)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return invalidRequest("schedule %s has %d occupied seats", scheduleID, len(live))
		}
		return tx.SeatLayout.Replace(ctx, scheduleID, seats)
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidRequest) {
			s.log.Error("Failed to update layout",
				zap.Error(err),
				zap.String("schedule_id", scheduleID.String()),
			)
		}
		return nil, fmt.Errorf("update layout of schedule %s: %w", scheduleID, err)
	}

	s.log.Info("Seat layout updated",
		zap.String("schedule_id", scheduleID.String()),
		zap.Int("seat_count", len(seats)),
	)

	return s.GetLayout(ctx, scheduleID)
}

func (s *seatService) ReleaseOrphans(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()

	orphans, err := s.repo.SeatHold.FindOrphans(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("find orphan holds: %w", err)
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	bySchedule := make(map[uuid.UUID][]entity.Position)
	var order []uuid.UUID
	for _, h := range orphans {
		if _, ok := bySchedule[h.ScheduleID]; !ok {
			order = append(order, h.ScheduleID)
		}
		bySchedule[h.ScheduleID] = append(bySchedule[h.ScheduleID], h.Position)
	}

	total := 0
	var errs []error
	for _, scheduleID := range order {
		var released []entity.Position
		err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
			var err error
			released, err = tx.SeatHold.ReleaseOrphans(ctx, scheduleID, bySchedule[scheduleID], now)
			if err != nil {
				return err
			}
			return tx.HoldLedger.DeleteDangling(ctx, scheduleID, released)
		})
		if err != nil {
			s.log.Error("Failed to release orphan holds",
				zap.Error(err),
				zap.String("schedule_id", scheduleID.String()),
			)
			errs = append(errs, fmt.Errorf("schedule %s: %w", scheduleID, err))
			continue
		}
		if len(released) == 0 {
			continue
		}

		total += len(released)
		s.metrics.OrphansReleased.Add(float64(len(released)))
		s.log.Warn("Released orphan holds",
			zap.String("schedule_id", scheduleID.String()),
			zap.Any("seats", released),
		)
		s.events.Publish(ctx, broadcast.Event{
			Type:       broadcast.EventReleased,
			ScheduleID: scheduleID,
			Seats:      released,
			At:         now,
		})
	}

	return total, errors.Join(errs...)
}

func layoutResponse(scheduleID uuid.UUID, seats []*entity.LayoutSeat) *response.LayoutResponse {
	out := make([]response.LayoutSeatResponse, len(seats))
	for i, seat := range seats {
		out[i] = response.LayoutSeatResponse{
			Row:    seat.Position.Row,
			Column: seat.Position.Column,
			Grade:  seat.Grade,
		}
	}
	return &response.LayoutResponse{
		ScheduleID: scheduleID.String(),
		Seats:      out,
	}
}
