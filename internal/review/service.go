// internal/review/service.go
package review

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for reviews and the ONG rating aggregate.
type Service interface {
	// Create writes a review for a checked-in application inside its window
	// and recomputes the ONG's rating in the same transaction.
	Create(ctx context.Context, volunteerUserID uuid.UUID, in CreateInput) (*Review, error)
	// Update edits the caller's review while its window is open.
	Update(ctx context.Context, volunteerUserID, reviewID uuid.UUID, in UpdateInput) (*Review, error)
	// Delete removes the caller's review while its window is open.
	Delete(ctx context.Context, volunteerUserID, reviewID uuid.UUID) error

	// ListByOng returns one page of an ONG's reviews with its rating header.
	ListByOng(ctx context.Context, ongID uuid.UUID, page, pageSize int) (*OngReviews, error)
	// Mine returns the calling volunteer's reviews, newest first.
	Mine(ctx context.Context, volunteerUserID uuid.UUID) ([]View, error)
	// ListEligible returns the volunteer's reviewable applications with the
	// hours remaining in each window.
	ListEligible(ctx context.Context, volunteerUserID uuid.UUID) ([]Eligible, error)
}
