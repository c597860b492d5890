// internal/category/domain.go
package category

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FallbackName is the category that adopts the events of a deleted category.
const FallbackName = "Others"

var (
	ErrNotFound        = errors.New("category not found")
	ErrAlreadyExists   = errors.New("category already exists")
	ErrFallbackMissing = errors.New("fallback category does not exist")
)

// Category classifies events (environment, education, health, ...).
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
