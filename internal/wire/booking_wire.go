package wire

import (
	"smarter-store/internal/adaptor"
	"smarter-store/pkg/middleware"
	"smarter-store/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	config *utils.Config,
	rdb *redis.Client,
	log *zap.Logger,
) {
	// ==================== USER ROUTES (require identity) ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(log))

		r.Post("/api/bookings", bookingHandler.StartBooking)
		r.Get("/api/bookings/{id}", bookingHandler.GetBooking)
		r.Post("/api/bookings/{id}/cancel", bookingHandler.CancelBooking)

		// extend dibatasi per user per booking
		r.With(middleware.RateLimit(config.RateLimit, rdb, log)).
			Post("/api/bookings/{id}/extend", bookingHandler.ExtendHold)

		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)
	})

	// ==================== PAYMENT COLLABORATOR ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(log))
		r.Use(middleware.RequireRole(log, middleware.RolePayment, middleware.RoleAdmin))

		r.Post("/api/payments/confirm", bookingHandler.ConfirmPayment)
	})
}
