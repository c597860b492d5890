// internal/event/service.go
package event

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for event management by ONGs and the
// public listings volunteers browse.
type Service interface {
	Create(ctx context.Context, ongUserID uuid.UUID, in CreateInput) (*Event, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	Update(ctx context.Context, ongUserID, id uuid.UUID, in UpdateInput) (*Event, error)
	// Cancel marks the event CANCELLED, cancels every PENDING/ACCEPTED
	// application, and zeroes the reserved counter in one transaction.
	Cancel(ctx context.Context, ongUserID, id uuid.UUID) error

	// ListOpen returns SCHEDULED events. When callerUserID belongs to a
	// volunteer, events they already applied to are filtered out.
	ListOpen(ctx context.Context, callerUserID uuid.UUID) ([]View, error)
	ListByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error)
	ListActiveByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error)
	ListPastByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error)
}
