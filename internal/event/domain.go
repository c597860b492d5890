// internal/event/domain.go
package event

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound              = errors.New("event not found")
	ErrNotOwner              = errors.New("event does not belong to this ong")
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCapacityBelowReserved = errors.New("capacity cannot drop below reserved slots")
	ErrAlreadyCancelled      = errors.New("event is already cancelled")
	ErrStartInPast           = errors.New("event start time must be in the future")
)

// Event is a time-bound volunteering opportunity owned by an ONG.
//
// Reserved counts applications in PENDING or ACCEPTED and is mutated only
// through the application package's reserve/release statements. The
// scheduling phase is never stored; only the CANCELLED override is. CheckInCode
// is empty until the owning ONG requests it during the event.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	OngID           uuid.UUID  `json:"ong_id"`
	CategoryID      uuid.UUID  `json:"category_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Capacity        int        `json:"capacity"`
	Reserved        int        `json:"reserved"`
	Cancelled       bool       `json:"cancelled"`
	CheckInCode     string     `json:"-"`
	CheckInCodeAt   *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// View is an event enriched with its derived phase and display names.
type View struct {
	Event
	Phase        string `json:"phase"`
	CategoryName string `json:"category_name,omitempty"`
	OngName      string `json:"ong_name,omitempty"`
}

// CreateInput carries the fields an ONG submits to publish an event.
type CreateInput struct {
	CategoryID      uuid.UUID `json:"category_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Capacity        int       `json:"capacity"`
}

// UpdateInput holds the editable event fields; nil leaves a field untouched.
type UpdateInput struct {
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Location        *string    `json:"location,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Capacity        *int       `json:"capacity,omitempty"`
}
