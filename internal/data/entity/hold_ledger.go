package entity

import (
	"time"

	"github.com/google/uuid"
)

// HoldLedgerEntry links one seat hold to the booking that created it.
// Entries of a confirmed booking are kept for refund correlation.
type HoldLedgerEntry struct {
	BookingID  uuid.UUID `db:"booking_id"`
	ScheduleID uuid.UUID `db:"schedule_id"`
	Position   Position  `db:"-"`
	CreatedAt  time.Time `db:"created_at"`
}

// LedgerPositions extracts the positions of entries.
func LedgerPositions(entries []*HoldLedgerEntry) []Position {
	positions := make([]Position, len(entries))
	for i, e := range entries {
		positions[i] = e.Position
	}
	return positions
}
