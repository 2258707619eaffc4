package response

import (
	"time"

	"smarter-store/internal/data/entity"
)

type BookingResponse struct {
	ID          string               `json:"id"`
	OrderID     string               `json:"order_id"`
	ScheduleID  string               `json:"schedule_id"`
	UserID      string               `json:"user_id"`
	Status      entity.BookingStatus `json:"status"`
	SeatCount   int                  `json:"seat_count"`
	Seats       []entity.Position    `json:"seats"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	ConfirmedAt *time.Time           `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ConflictResponse tells the client exactly which seats were taken.
type ConflictResponse struct {
	Code  string            `json:"code"`
	Seats []entity.Position `json:"seats"`
}

// StateErrorResponse is the detail of a rejected state transition.
type StateErrorResponse struct {
	Code           string `json:"code"`
	BookingID      string `json:"booking_id,omitempty"`
	RefundRequired bool   `json:"refund_required,omitempty"`
}

func BookingToResponse(b *entity.Booking, seats []entity.Position) BookingResponse {
	if seats == nil {
		seats = []entity.Position{}
	}
	return BookingResponse{
		ID:          b.ID.String(),
		OrderID:     b.OrderID,
		ScheduleID:  b.ScheduleID.String(),
		UserID:      b.UserID.String(),
		Status:      b.Status,
		SeatCount:   b.SeatCount,
		Seats:       seats,
		ExpiresAt:   b.ExpiresAt,
		ConfirmedAt: b.ConfirmedAt,
		CreatedAt:   b.CreatedAt,
	}
}
