// internal/category/implementation.go
package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// service implements the Service interface.
type service struct {
	db *sql.DB
}

// NewService creates a new category service instance.
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

// Create inserts a new category with a unique name.
func (s *service) Create(ctx context.Context, name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required")
	}

	c := &Category{ID: uuid.New(), Name: name, Description: description}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.Name, c.Description).Scan(&c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	return c, nil
}

// Get retrieves a category by id.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Category, error) {
	c := &Category{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// List returns all categories, newest first.
func (s *service) List(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM categories ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Update changes the provided fields of a category.
func (s *service) Update(ctx context.Context, id uuid.UUID, name, description *string) (*Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET
			name        = COALESCE($2, name),
			description = COALESCE($3, description)
		WHERE id = $1
	`, id, name, description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete re-points the category's events to the fallback category and
// removes it, as a single transaction.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fallbackID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = $1`, FallbackName).Scan(&fallbackID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFallbackMissing
		}
		return fmt.Errorf("failed to load fallback category: %w", err)
	}
	if fallbackID == id {
		return fmt.Errorf("the fallback category cannot be deleted")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE events SET category_id = $1 WHERE category_id = $2`, fallbackID, id)
	if err != nil {
		return fmt.Errorf("failed to re-point events: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
