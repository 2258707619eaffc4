package usecase

import (
	"errors"
	"fmt"

	"smarter-store/internal/data/repository"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNotFound        = errors.New("booking not found")
	ErrForbidden       = errors.New("booking belongs to another user")
	ErrAlreadyTerminal = errors.New("booking already in a terminal state")
	// ErrExpired is returned by Confirm when the lease elapsed first. Payment
	// may already have moved, so the caller owes the user a refund.
	ErrExpired = errors.New("booking hold expired")
	// ErrLeaseActive rejects an expiry attempt before the lease elapsed.
	ErrLeaseActive    = errors.New("booking lease still active")
	ErrLayoutNotFound = errors.New("seat layout not found")

	ErrSeatConflict = repository.ErrSeatConflict
)

// ConflictError carries the seats that were already held or reserved.
type ConflictError = repository.ConflictError

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
