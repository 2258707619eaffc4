package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Position is a 1-based (row, column) pair inside a schedule's layout.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Column)
}

// Less orders positions row first, then column.
func (p Position) Less(o Position) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Column < o.Column
}

// SortPositions returns a sorted, de-duplicated copy of positions.
// Every multi-seat lock is taken in this order.
func SortPositions(positions []Position) []Position {
	out := make([]Position, 0, len(positions))
	seen := make(map[Position]struct{}, len(positions))
	for _, p := range positions {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

type SeatHoldStatus string

const (
	SeatHoldStatusHeld     SeatHoldStatus = "HELD"
	SeatHoldStatusReserved SeatHoldStatus = "RESERVED"
)

// SeatHold is the occupancy of one seat for one schedule. A free seat has no row.
type SeatHold struct {
	Timestamps
	ScheduleID     uuid.UUID      `db:"schedule_id"`
	Position       Position       `db:"-"`
	Grade          string         `db:"grade"`
	Status         SeatHoldStatus `db:"status"`
	HolderUserID   *uuid.UUID     `db:"holder_user_id"`
	LeaseExpiresAt *time.Time     `db:"lease_expires_at"` // nil once RESERVED
}

// IsStale reports whether a HELD seat's lease elapsed before now.
// Stale holds are free for every reader even before the sweeper deletes them.
func (h *SeatHold) IsStale(now time.Time) bool {
	return h.Status == SeatHoldStatusHeld && h.LeaseExpiresAt != nil && h.LeaseExpiresAt.Before(now)
}

// IsLive is the inverse of IsStale.
func (h *SeatHold) IsLive(now time.Time) bool {
	return !h.IsStale(now)
}
