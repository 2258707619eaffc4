package entity

import "github.com/google/uuid"

// LayoutSeat is one seat of a schedule's fixed layout and its grade.
type LayoutSeat struct {
	ScheduleID uuid.UUID `db:"schedule_id"`
	Position   Position  `db:"-"`
	Grade      string    `db:"grade"` // STANDARD, PREMIUM, VIP, ...
}
