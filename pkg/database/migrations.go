package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RunMigrations membuat tabel seat hold kalau belum ada
func RunMigrations(ctx context.Context, db Querier, log *zap.Logger) error {
	log.Info("Running database migrations")

	migrations := []string{
		createScheduleSeatsTable,
		createBookingsTable,
		createSeatHoldsTable,
		createHoldLedgerTable,
		createBookingsExpiryIndex,
		createSeatHoldsLeaseIndex,
		createBookingsUserIndex,
	}

	for i, migration := range migrations {
		log.Debug("Running migration", zap.Int("step", i+1))
		if _, err := db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("All migrations completed successfully", zap.Int("steps", len(migrations)))
	return nil
}

const createScheduleSeatsTable = `
CREATE TABLE IF NOT EXISTS schedule_seats (
    schedule_id UUID NOT NULL,
    seat_row INTEGER NOT NULL CHECK (seat_row > 0),
    seat_col INTEGER NOT NULL CHECK (seat_col > 0),
    grade VARCHAR(32) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (schedule_id, seat_row, seat_col)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY,
    order_id VARCHAR(64) NOT NULL UNIQUE,
    schedule_id UUID NOT NULL,
    user_id UUID NOT NULL,
    status VARCHAR(16) NOT NULL,
    seat_count INTEGER NOT NULL,
    expires_at TIMESTAMPTZ,
    confirmed_at TIMESTAMPTZ,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`

const createSeatHoldsTable = `
CREATE TABLE IF NOT EXISTS seat_holds (
    schedule_id UUID NOT NULL,
    seat_row INTEGER NOT NULL,
    seat_col INTEGER NOT NULL,
    grade VARCHAR(32) NOT NULL,
    status VARCHAR(16) NOT NULL,
    holder_user_id UUID,
    lease_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (schedule_id, seat_row, seat_col),
    CHECK ((status = 'HELD' AND lease_expires_at IS NOT NULL) OR (status = 'RESERVED' AND lease_expires_at IS NULL))
);`

const createHoldLedgerTable = `
CREATE TABLE IF NOT EXISTS hold_ledger (
    booking_id UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
    schedule_id UUID NOT NULL,
    seat_row INTEGER NOT NULL,
    seat_col INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (booking_id, seat_row, seat_col)
);
CREATE INDEX IF NOT EXISTS idx_hold_ledger_position ON hold_ledger (schedule_id, seat_row, seat_col);`

const createBookingsExpiryIndex = `
CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings (status, expires_at);`

const createSeatHoldsLeaseIndex = `
CREATE INDEX IF NOT EXISTS idx_seat_holds_status_lease ON seat_holds (status, lease_expires_at);`

const createBookingsUserIndex = `
CREATE INDEX IF NOT EXISTS idx_bookings_user_created ON bookings (user_id, created_at DESC);`
