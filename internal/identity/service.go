// internal/identity/service.go
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for accounts, profiles, and moderation.
type Service interface {
	RegisterVolunteer(ctx context.Context, in RegisterVolunteerInput) (*Account, error)
	RegisterOng(ctx context.Context, in RegisterOngInput) (*Account, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)

	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	UpdateVolunteerProfile(ctx context.Context, userID uuid.UUID, in UpdateVolunteerInput) (*VolunteerProfile, error)
	UpdateOngProfile(ctx context.Context, userID uuid.UUID, in UpdateOngInput) (*OngProfile, error)

	// Profile resolution for the core services. A missing profile is a
	// permission failure (ErrNotAVolunteer / ErrNotAnOng), not a data error.
	VolunteerProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	OngProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)

	// Admin moderation.
	ListUsers(ctx context.Context, role, status string) ([]Account, error)
	ListOngs(ctx context.Context) ([]Account, error)
	ListVolunteers(ctx context.Context) ([]Account, error)
	UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) (*User, error)
}
