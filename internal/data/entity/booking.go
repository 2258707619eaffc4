package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s != BookingStatusPending
}

type Booking struct {
	Base
	OrderID     string        `db:"order_id"`
	ScheduleID  uuid.UUID     `db:"schedule_id"`
	UserID      uuid.UUID     `db:"user_id"`
	Status      BookingStatus `db:"status"`
	SeatCount   int           `db:"seat_count"`
	ExpiresAt   *time.Time    `db:"expires_at"` // mirrors the seat lease while PENDING
	ConfirmedAt *time.Time    `db:"confirmed_at"`
	Version     int           `db:"version"`
}

// LeaseElapsed reports whether a PENDING booking can no longer be confirmed at now.
func (b *Booking) LeaseElapsed(now time.Time) bool {
	return b.ExpiresAt == nil || !now.Before(*b.ExpiresAt)
}
