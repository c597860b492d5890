// internal/review/domain.go
package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Window is how long after checking in a volunteer may write, edit, or
// delete the review for that attendance.
const Window = 48 * time.Hour

var (
	ErrNotFound        = errors.New("review not found")
	ErrNotOwner        = errors.New("review does not belong to this caller")
	ErrAlreadyReviewed = errors.New("application already has a review")
	ErrWindowClosed    = errors.New("the 48h review window has closed")
	ErrNotCheckedIn    = errors.New("volunteer did not check in to this event")
	ErrInvalidPhase    = errors.New("event has not started yet")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// Review is a volunteer's rating of an ONG, anchored to one checked-in
// application. At most one review per application.
type Review struct {
	ID            uuid.UUID `json:"id"`
	ApplicationID uuid.UUID `json:"application_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// View is a review enriched with display context for listings.
type View struct {
	Review
	EventTitle    string `json:"event_title"`
	VolunteerName string `json:"volunteer_name,omitempty"`
	OngName       string `json:"ong_name,omitempty"`
}

// OngReviews is the public review page of one ONG: the denormalized rating
// header plus one page of reviews.
type OngReviews struct {
	OngID         uuid.UUID `json:"ong_id"`
	OngName       string    `json:"ong_name"`
	AverageRating float64   `json:"average_rating"`
	TotalReviews  int       `json:"total_reviews"`
	Reviews       []View    `json:"reviews"`
	Page          int       `json:"page"`
	PageSize      int       `json:"page_size"`
}

// Eligible is a checked-in, unreviewed application whose window is still
// open, with the time the volunteer has left.
type Eligible struct {
	ApplicationID  uuid.UUID `json:"application_id"`
	EventID        uuid.UUID `json:"event_id"`
	EventTitle     string    `json:"event_title"`
	OngName        string    `json:"ong_name"`
	CheckInAt      time.Time `json:"check_in_at"`
	HoursRemaining float64   `json:"hours_remaining"`
}

// CreateInput carries a new review.
type CreateInput struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment"`
}

// UpdateInput holds the editable review fields; nil leaves a field untouched.
type UpdateInput struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// InsideWindow reports whether the review window opened at checkInAt is
// still open at now.
func InsideWindow(checkInAt, now time.Time) bool {
	return now.Sub(checkInAt) <= Window
}
