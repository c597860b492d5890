// internal/category/service.go
package category

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for category management.
type Service interface {
	Create(ctx context.Context, name, description string) (*Category, error)
	Get(ctx context.Context, id uuid.UUID) (*Category, error)
	List(ctx context.Context) ([]Category, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (*Category, error)
	// Delete removes a category after re-pointing its events to the
	// fallback category. Fails with ErrFallbackMissing if "Others" does
	// not exist yet.
	Delete(ctx context.Context, id uuid.UUID) error
}
