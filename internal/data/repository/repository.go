package repository

import (
	"context"

	"smarter-store/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxRunner runs fn against a Repository bound to one unit of work.
// Everything fn does is committed together or not at all.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *Repository) error) error
}

type Repository struct {
	SeatHold   SeatHoldRepository
	Booking    BookingRepository
	HoldLedger HoldLedgerRepository
	SeatLayout SeatLayoutRepository

	tx   TxRunner
	ping func(ctx context.Context) error
}

// New assembles a Repository from store implementations. A nil tx means the
// stores are already bound to a unit of work and WithTx runs inline.
func New(
	seatHold SeatHoldRepository,
	booking BookingRepository,
	ledger HoldLedgerRepository,
	layout SeatLayoutRepository,
	tx TxRunner,
	ping func(ctx context.Context) error,
) *Repository {
	return &Repository{
		SeatHold:   seatHold,
		Booking:    booking,
		HoldLedger: ledger,
		SeatLayout: layout,
		tx:         tx,
		ping:       ping,
	}
}

// NewRepository builds the Postgres backed repository.
func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newQueries(db, log)
	repo.tx = &pgTxRunner{db: db, log: log}
	repo.ping = db.Ping
	return repo
}

func newQueries(q database.Querier, log *zap.Logger) *Repository {
	return New(
		NewSeatHoldRepository(q, log),
		NewBookingRepository(q, log),
		NewHoldLedgerRepository(q, log),
		NewSeatLayoutRepository(q, log),
		nil,
		nil,
	)
}

// WithTx runs fn inside a unit of work. Nested calls join the outer one.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx.WithTx(ctx, fn)
}

// Ping checks that the backing store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

type pgTxRunner struct {
	db  database.PgxIface
	log *zap.Logger
}

func (t *pgTxRunner) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return database.InTx(ctx, t.db, func(tx pgx.Tx) error {
		return fn(newQueries(tx, t.log))
	})
}
