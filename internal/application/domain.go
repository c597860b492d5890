// internal/application/domain.go
package application

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"voluntaris/internal/event"
)

// Application statuses. PENDING and ACCEPTED count against the event's
// reserved slots; REJECTED and CANCELLED are terminal and do not.
const (
	StatusPending   = "PENDING"
	StatusAccepted  = "ACCEPTED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Cutoff is the pre-event window: volunteers can apply or cancel only while
// the event starts at least this far in the future.
const Cutoff = 48 * time.Hour

var (
	ErrNotFound          = errors.New("application not found")
	ErrNotOwner          = errors.New("application does not belong to this caller")
	ErrDuplicate         = errors.New("volunteer already applied to this event")
	ErrWindowClosed      = errors.New("the 48h pre-event window has closed")
	ErrCapacityFull      = errors.New("event is at full capacity")
	ErrInvalidPhase      = errors.New("operation not allowed in the event's current phase")
	ErrInvalidTransition = errors.New("application status does not allow this transition")
	ErrCodeNotIssued     = errors.New("check-in code has not been issued yet")
	ErrCodeMismatch      = errors.New("check-in code does not match")
	ErrAlreadyCheckedIn  = errors.New("volunteer already checked in")
)

// Application is one volunteer's candidacy for one event. Rows are never
// deleted; history feeds the past-events and review-eligibility queries.
type Application struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	VolunteerID uuid.UUID  `json:"volunteer_id"`
	Status      string     `json:"status"`
	AppliedAt   time.Time  `json:"applied_at"`
	CheckedIn   bool       `json:"checked_in"`
	CheckInAt   *time.Time `json:"check_in_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CanTransition reports whether the status change is legal:
// PENDING -> ACCEPTED | REJECTED | CANCELLED, ACCEPTED -> REJECTED |
// CANCELLED. REJECTED and CANCELLED are terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusAccepted || to == StatusRejected || to == StatusCancelled
	case StatusAccepted:
		return to == StatusRejected || to == StatusCancelled
	default:
		return false
	}
}

// CountsReserved reports whether an application in the given status holds
// one of the event's reserved slots.
func CountsReserved(status string) bool {
	return status == StatusPending || status == StatusAccepted
}

// InsideCutoff reports whether the pre-event window is still open at now.
func InsideCutoff(start, now time.Time) bool {
	return start.Sub(now) >= Cutoff
}

// EventView is an event as seen from one volunteer's application.
type EventView struct {
	event.View
	ApplicationID     uuid.UUID `json:"application_id"`
	ApplicationStatus string    `json:"application_status"`
	CheckedIn         bool      `json:"checked_in"`
}

// Candidate is an application row enriched with the volunteer's name, as
// shown to the owning ONG.
type Candidate struct {
	Application
	VolunteerName string `json:"volunteer_name"`
}

// CheckInCode is an issued event code with its generation instant.
type CheckInCode struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}
