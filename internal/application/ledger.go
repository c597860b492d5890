// internal/application/ledger.go
package application

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Ledger owns the event's reserved counter. Both operations are single
// conditional statements evaluated at commit time, never a read followed by
// a write in application code, so concurrent reservations against the same
// event serialize on the row and can never overshoot capacity.
type Ledger struct{}

// Reserve takes one slot. Returns ErrCapacityFull when the event is full at
// the instant the statement commits. Must run inside the same transaction as
// the application write it pairs with.
func (Ledger) Reserve(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE events SET reserved = reserved + 1, updated_at = NOW()
		WHERE id = $1 AND reserved < capacity
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCapacityFull
	}
	return nil
}

// Release frees one slot, floored at zero. Must run inside the same
// transaction as the status change that frees it.
func (Ledger) Release(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE events SET reserved = GREATEST(reserved - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}
