package response

import (
	"time"

	"smarter-store/internal/data/entity"
)

type SeatResponse struct {
	Row            int                   `json:"row"`
	Column         int                   `json:"column"`
	Grade          string                `json:"grade"`
	Status         entity.SeatHoldStatus `json:"status"`
	LeaseExpiresAt *time.Time            `json:"lease_expires_at,omitempty"`
}

// SeatStatusResponse lists occupied seats only; every other layout seat is free.
type SeatStatusResponse struct {
	ScheduleID string         `json:"schedule_id"`
	Seats      []SeatResponse `json:"seats"`
	AsOf       time.Time      `json:"as_of"`
}

type LayoutSeatResponse struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Grade  string `json:"grade"`
}

type LayoutResponse struct {
	ScheduleID string               `json:"schedule_id"`
	Seats      []LayoutSeatResponse `json:"seats"`
}

func SeatHoldToResponse(h *entity.SeatHold) SeatResponse {
	return SeatResponse{
		Row:            h.Position.Row,
		Column:         h.Position.Column,
		Grade:          h.Grade,
		Status:         h.Status,
		LeaseExpiresAt: h.LeaseExpiresAt,
	}
}
