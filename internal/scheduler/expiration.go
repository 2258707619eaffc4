// Package scheduler runs the background expiration sweep.
package scheduler

import (
	"context"
	"errors"
	"time"

	"smarter-store/internal/data/repository"
	"smarter-store/internal/dto/response"
	"smarter-store/internal/usecase"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultBatchSize = 500

// Expirer moves one PENDING booking to EXPIRED.
type Expirer interface {
	Expire(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error)
}

// OrphanReleaser frees stale holds that no pending booking owns.
type OrphanReleaser interface {
	ReleaseOrphans(ctx context.Context, limit int) (int, error)
}

type Result struct {
	Expired  int
	Skipped  int
	Failed   int
	Orphans  int
	Duration time.Duration
}

// ExpirationSweeper periodically expires bookings whose lease elapsed and
// reclaims orphaned holds. A failure on one booking never stops the sweep.
type ExpirationSweeper struct {
	bookings  repository.BookingRepository
	expirer   Expirer
	orphans   OrphanReleaser
	interval  time.Duration
	batchSize int
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewExpirationSweeper(
	bookings repository.BookingRepository,
	expirer Expirer,
	orphans OrphanReleaser,
	interval time.Duration,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) *ExpirationSweeper {
	return &ExpirationSweeper{
		bookings:  bookings,
		expirer:   expirer,
		orphans:   orphans,
		interval:  interval,
		batchSize: defaultBatchSize,
		clock:     clk,
		metrics:   m,
		log:       log.With(zap.String("job", "expiration_sweeper")),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirationSweeper) Run(ctx context.Context) error {
	s.log.Info("Starting expiration sweeper", zap.Duration("interval", s.interval))

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Expiration sweeper stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Sweeps never overlap since Run calls it
// synchronously.
func (s *ExpirationSweeper) RunOnce(ctx context.Context) Result {
	started := time.Now()
	now := s.clock.Now()
	var res Result

	for {
		ids, err := s.bookings.FindExpiredPending(ctx, now, s.batchSize)
		if err != nil {
			s.log.Error("Failed to find expired bookings", zap.Error(err))
			s.metrics.SweepFailures.Inc()
			break
		}

		progressed := false
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			_, err := s.expirer.Expire(ctx, id)
			switch {
			case err == nil:
				res.Expired++
				progressed = true
			case errors.Is(err, usecase.ErrAlreadyTerminal), errors.Is(err, usecase.ErrLeaseActive):
				// a confirm, cancel or extend won the race
				res.Skipped++
			default:
				res.Failed++
				s.metrics.SweepFailures.Inc()
				s.log.Error("Failed to expire booking",
					zap.Error(err),
					zap.String("booking_id", id.String()),
				)
			}
		}

		// a full batch hints at more work; stop when nothing moved to avoid
		// spinning on rows that keep failing
		if len(ids) < s.batchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() == nil {
		released, err := s.orphans.ReleaseOrphans(ctx, s.batchSize)
		res.Orphans = released
		if err != nil {
			s.metrics.SweepFailures.Inc()
			s.log.Error("Failed to release orphan holds", zap.Error(err))
		}
	}

	res.Duration = time.Since(started)
	s.metrics.SweepRuns.Inc()
	s.metrics.SweepDuration.Observe(res.Duration.Seconds())

	if res.Expired+res.Failed+res.Orphans > 0 {
		s.log.Info("Expiration sweep finished",
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Int("orphans_released", res.Orphans),
			zap.Duration("took", res.Duration),
		)
	} else {
		s.log.Debug("Expiration sweep found nothing to do")
	}

	return res
}
