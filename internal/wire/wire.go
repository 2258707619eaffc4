// internal/wire/wire.go
package wire

import (
	"context"
	"net/http"
	"time"

	"smarter-store/internal/adaptor"
	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/usecase"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/middleware"
	"smarter-store/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App menyimpan semua dependencies
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

// Wiring menginisialisasi semua dependencies
func Wiring(
	repo *repository.Repository,
	config *utils.Config,
	deps usecase.Dependencies,
	hub *broadcast.Hub,
	rdb *redis.Client,
	logger *zap.Logger,
) *App {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	service := usecase.NewService(repo, config, deps, logger)
	handler := adaptor.NewHandler(service, hub, logger)

	router := setupRouter(handler, repo, config, deps.Metrics, rdb, logger)

	return &App{
		Router:  router,
		Service: service,
	}
}

// setupRouter konfigurasi Chi router
func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	config *utils.Config,
	m *metrics.Metrics,
	rdb *redis.Client,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS())

	// Apply routes
	wireBooking(r, handler.Booking, config, rdb, logger)
	wireSeat(r, handler.Seat, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := repo.Ping(ctx); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			utils.ResponseUnavailable(w, "Store unavailable")
			return
		}
		utils.ResponseSuccess(w, "OK", nil)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}
