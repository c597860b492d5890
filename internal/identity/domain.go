// internal/identity/domain.go
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Roles a user account can hold.
const (
	RoleVolunteer = "VOLUNTEER"
	RoleOng       = "ONG"
	RoleAdmin     = "ADMIN"
)

// Account statuses. ONGs start PENDING until an admin approves them.
const (
	StatusActive  = "ACTIVE"
	StatusPending = "PENDING"
	StatusBlocked = "BLOCKED"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrCPFTaken           = errors.New("cpf already registered")
	ErrCNPJTaken          = errors.New("cnpj already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrAccountPending     = errors.New("account is pending approval")
	ErrNotAVolunteer      = errors.New("user has no volunteer profile")
	ErrNotAnOng           = errors.New("user has no ong profile")
	ErrAdminImmutable     = errors.New("admin accounts cannot be moderated")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// User is a login account. Domain data lives on the role-specific profile.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VolunteerProfile holds the volunteer-side data of a user.
type VolunteerProfile struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	FullName     string     `json:"full_name"`
	CPF          string     `json:"cpf"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	CEP          string     `json:"cep,omitempty"`
	Street       string     `json:"street,omitempty"`
	Number       string     `json:"number,omitempty"`
	Complement   string     `json:"complement,omitempty"`
	Neighborhood string     `json:"neighborhood,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	Experiences  string     `json:"experiences,omitempty"`
}

// OngProfile holds the organization-side data of a user. AverageRating and
// TotalReviews are denormalized from the review set; the review package
// recomputes them on every review mutation.
type OngProfile struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Name             string    `json:"name"`
	CNPJ             string    `json:"cnpj"`
	Description      string    `json:"description,omitempty"`
	CEP              string    `json:"cep,omitempty"`
	Street           string    `json:"street,omitempty"`
	Number           string    `json:"number,omitempty"`
	Complement       string    `json:"complement,omitempty"`
	Neighborhood     string    `json:"neighborhood,omitempty"`
	City             string    `json:"city,omitempty"`
	State            string    `json:"state,omitempty"`
	ResponsibleName  string    `json:"responsible_name,omitempty"`
	ResponsibleCPF   string    `json:"responsible_cpf,omitempty"`
	ResponsibleEmail string    `json:"responsible_email,omitempty"`
	DocumentURL      string    `json:"document_url,omitempty"`
	AverageRating    float64   `json:"average_rating"`
	TotalReviews     int       `json:"total_reviews"`
}

// Account is a user together with whichever profile its role carries.
type Account struct {
	User      User              `json:"user"`
	Volunteer *VolunteerProfile `json:"volunteer_profile,omitempty"`
	Ong       *OngProfile       `json:"ong_profile,omitempty"`
}

// RegisterVolunteerInput carries the volunteer sign-up form.
type RegisterVolunteerInput struct {
	Email        string     `json:"email"`
	Password     string     `json:"password"`
	FullName     string     `json:"full_name"`
	CPF          string     `json:"cpf"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	CEP          string     `json:"cep,omitempty"`
	Street       string     `json:"street,omitempty"`
	Number       string     `json:"number,omitempty"`
	Complement   string     `json:"complement,omitempty"`
	Neighborhood string     `json:"neighborhood,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	Experiences  string     `json:"experiences,omitempty"`
}

// RegisterOngInput carries the organization sign-up form.
type RegisterOngInput struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	CNPJ             string `json:"cnpj"`
	Description      string `json:"description,omitempty"`
	CEP              string `json:"cep,omitempty"`
	Street           string `json:"street,omitempty"`
	Number           string `json:"number,omitempty"`
	Complement       string `json:"complement,omitempty"`
	Neighborhood     string `json:"neighborhood,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	ResponsibleName  string `json:"responsible_name,omitempty"`
	ResponsibleCPF   string `json:"responsible_cpf,omitempty"`
	ResponsibleEmail string `json:"responsible_email,omitempty"`
	DocumentURL      string `json:"document_url,omitempty"`
}

// UpdateVolunteerInput holds the self-service editable volunteer fields.
// Nil pointers leave the stored value untouched.
type UpdateVolunteerInput struct {
	FullName     *string `json:"full_name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Experiences  *string `json:"experiences,omitempty"`
	CEP          *string `json:"cep,omitempty"`
	Street       *string `json:"street,omitempty"`
	Number       *string `json:"number,omitempty"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`
}

// UpdateOngInput holds the self-service editable ONG fields.
type UpdateOngInput struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	CEP             *string `json:"cep,omitempty"`
	Street          *string `json:"street,omitempty"`
	Number          *string `json:"number,omitempty"`
	Complement      *string `json:"complement,omitempty"`
	Neighborhood    *string `json:"neighborhood,omitempty"`
	City            *string `json:"city,omitempty"`
	State           *string `json:"state,omitempty"`
	ResponsibleName *string `json:"responsible_name,omitempty"`
	ResponsibleCPF  *string `json:"responsible_cpf,omitempty"`
	DocumentURL     *string `json:"document_url,omitempty"`
}
