package repository

import (
	"errors"
	"fmt"
	"strings"

	"smarter-store/internal/data/entity"
)

var (
	// ErrSeatConflict is matched by every *ConflictError.
	ErrSeatConflict = errors.New("seat already held or reserved")
	// ErrNotHeld means a confirm found a position without a live HELD row.
	ErrNotHeld = errors.New("seat not held")
	// ErrVersionMismatch means a booking changed between lock and update.
	ErrVersionMismatch = errors.New("booking version mismatch")
)

// ConflictError lists the requested positions that are already taken.
type ConflictError struct {
	Positions []entity.Position
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Positions))
	for i, p := range e.Positions {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s: %s", ErrSeatConflict.Error(), strings.Join(parts, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSeatConflict
}
