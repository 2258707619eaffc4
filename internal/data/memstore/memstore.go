// Package memstore is an in-process implementation of the repository
// interfaces. A unit of work holds the store mutex for its whole duration and
// restores a snapshot when it fails, which gives the same atomicity and
// mutual exclusion the Postgres store gets from transactions and locks.
package memstore

import (
	"context"
	"sync"

	"smarter-store/internal/data/entity"
	"smarter-store/internal/data/repository"

	"github.com/google/uuid"
)

var (
	_ repository.SeatHoldRepository   = (*seatHoldStore)(nil)
	_ repository.BookingRepository    = (*bookingStore)(nil)
	_ repository.HoldLedgerRepository = (*ledgerStore)(nil)
	_ repository.SeatLayoutRepository = (*layoutStore)(nil)
	_ repository.TxRunner             = (*DB)(nil)
)

type holdKey struct {
	scheduleID uuid.UUID
	position   entity.Position
}

type state struct {
	holds    map[holdKey]*entity.SeatHold
	bookings map[uuid.UUID]*entity.Booking
	ledger   map[uuid.UUID][]*entity.HoldLedgerEntry
	layouts  map[uuid.UUID]map[entity.Position]string
}

func newState() *state {
	return &state{
		holds:    make(map[holdKey]*entity.SeatHold),
		bookings: make(map[uuid.UUID]*entity.Booking),
		ledger:   make(map[uuid.UUID][]*entity.HoldLedgerEntry),
		layouts:  make(map[uuid.UUID]map[entity.Position]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, h := range s.holds {
		c.holds[k] = copyHold(h)
	}
	for id, b := range s.bookings {
		c.bookings[id] = copyBooking(b)
	}
	for id, entries := range s.ledger {
		cp := make([]*entity.HoldLedgerEntry, len(entries))
		for i, e := range entries {
			v := *e
			cp[i] = &v
		}
		c.ledger[id] = cp
	}
	for id, layout := range s.layouts {
		cp := make(map[entity.Position]string, len(layout))
		for p, g := range layout {
			cp[p] = g
		}
		c.layouts[id] = cp
	}
	return c
}

// DB owns the shared state.
type DB struct {
	mu sync.Mutex
	st *state
}

// New returns a Repository backed by a fresh in-process store.
func New() *repository.Repository {
	db := &DB{st: newState()}
	return db.bind(false, db)
}

func (d *DB) bind(locked bool, tx repository.TxRunner) *repository.Repository {
	return repository.New(
		&seatHoldStore{db: d, locked: locked},
		&bookingStore{db: d, locked: locked},
		&ledgerStore{db: d, locked: locked},
		&layoutStore{db: d, locked: locked},
		tx,
		nil,
	)
}

// WithTx runs fn with the store mutex held. On error every change fn made is
// discarded.
func (d *DB) WithTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.st.clone()
	if err := fn(d.bind(true, nil)); err != nil {
		d.st = snapshot
		return err
	}
	return nil
}

// with runs fn against the state, taking the mutex unless the caller already
// runs inside a unit of work.
func (d *DB) with(locked bool, fn func(s *state) error) error {
	if !locked {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	return fn(d.st)
}

func copyHold(h *entity.SeatHold) *entity.SeatHold {
	c := *h
	if h.HolderUserID != nil {
		v := *h.HolderUserID
		c.HolderUserID = &v
	}
	if h.LeaseExpiresAt != nil {
		v := *h.LeaseExpiresAt
		c.LeaseExpiresAt = &v
	}
	return &c
}

func copyBooking(b *entity.Booking) *entity.Booking {
	c := *b
	if b.ExpiresAt != nil {
		v := *b.ExpiresAt
		c.ExpiresAt = &v
	}
	if b.ConfirmedAt != nil {
		v := *b.ConfirmedAt
		c.ConfirmedAt = &v
	}
	return &c
}
