// internal/application/service.go
package application

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the application lifecycle.
//
// Every operation takes the caller's user id explicitly and resolves it to a
// profile; there is no ambient "current user".
type Service interface {
	// Apply creates a PENDING application and reserves one slot, atomically.
	Apply(ctx context.Context, volunteerUserID, eventID uuid.UUID) (*Application, error)
	// Cancel withdraws a PENDING or ACCEPTED application and releases its slot.
	Cancel(ctx context.Context, volunteerUserID, applicationID uuid.UUID) (*Application, error)
	// Decide moves a PENDING or ACCEPTED application to ACCEPTED or REJECTED.
	// Rejecting releases the slot; accepting consumes nothing extra.
	Decide(ctx context.Context, ongUserID, applicationID uuid.UUID, newStatus string) (*Application, error)
	// CheckIn confirms attendance with the event's code while it is in progress.
	CheckIn(ctx context.Context, volunteerUserID, eventID uuid.UUID, code string) (*Application, error)
	// IssueCheckInCode returns the event's code, generating it on first request.
	IssueCheckInCode(ctx context.Context, ongUserID, eventID uuid.UUID) (*CheckInCode, error)

	// ListActive returns the volunteer's PENDING/ACCEPTED applications on
	// SCHEDULED or IN_PROGRESS events.
	ListActive(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error)
	// ListPast returns events whose phase is COMPLETED/CANCELLED, plus any
	// application the volunteer cancelled regardless of phase.
	ListPast(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error)
	// ListByEvent returns PENDING/ACCEPTED candidates of an event to its ONG.
	ListByEvent(ctx context.Context, ongUserID, eventID uuid.UUID) ([]Candidate, error)
	// Notifications returns IN_PROGRESS events where the volunteer is
	// ACCEPTED and has not checked in yet.
	Notifications(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error)
}
