package wire

import (
	"smarter-store/internal/adaptor"
	"smarter-store/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireSeat(r chi.Router, seatHandler *adaptor.SeatHandler, log *zap.Logger) {
	// ==================== PUBLIC ROUTES ====================
	r.Route("/api/schedules/{id}", func(r chi.Router) {
		r.Get("/seats", seatHandler.GetSeatStatus)
		r.Get("/seats/events", seatHandler.StreamSeatEvents)
		r.Get("/layout", seatHandler.GetLayout)
	})

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/schedules/{id}", func(r chi.Router) {
		r.Use(middleware.Identity(log))
		r.Use(middleware.Admin(log))

		r.Put("/layout", seatHandler.UpdateLayout)
	})
}
