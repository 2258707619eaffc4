package adaptor

import (
	"smarter-store/internal/broadcast"
	"smarter-store/internal/usecase"

	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Seat    *SeatHandler
}

func NewHandler(service *usecase.Service, hub *broadcast.Hub, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Booking, log),
		Seat:    NewSeatHandler(service.Seat, hub, log),
	}
}
