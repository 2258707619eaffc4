package usecase

import (
	"context"

	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/messaging"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"go.uber.org/zap"
)

// SeatEventPublisher receives seat deltas after they are committed.
type SeatEventPublisher interface {
	Publish(ctx context.Context, event broadcast.Event)
}

type Dependencies struct {
	Clock     clock.Clock
	Events    SeatEventPublisher
	Lifecycle messaging.Publisher
	Metrics   *metrics.Metrics
}

type Service struct {
	Booking BookingService
	Seat    SeatService
}

func NewService(repo *repository.Repository, config *utils.Config, deps Dependencies, log *zap.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = messaging.NoopPublisher{}
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Service{
		Booking: NewBookingService(repo, config.Hold, deps, log),
		Seat:    NewSeatService(repo, deps, log),
	}
}

type discardEvents struct{}

func (discardEvents) Publish(context.Context, broadcast.Event) {}
