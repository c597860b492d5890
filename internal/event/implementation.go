// internal/event/implementation.go
package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voluntaris/internal/clock"
	"voluntaris/internal/identity"
)

// service implements the Service interface.
type service struct {
	db       *sql.DB
	profiles identity.Service
	clk      clock.Clock
	tracer   trace.Tracer
}

// NewService creates a new event service instance.
func NewService(db *sql.DB, profiles identity.Service, clk clock.Clock) Service {
	return &service{
		db:       db,
		profiles: profiles,
		clk:      clk,
		tracer:   otel.Tracer("voluntaris/event"),
	}
}

const eventColumns = `id, ong_id, category_id, title, description, location, start_time,
	duration_minutes, capacity, reserved, cancelled, check_in_code, check_in_code_at, created_at, updated_at`

func scanEvent(scanner interface{ Scan(...interface{}) error }) (*Event, error) {
	e := &Event{}
	var (
		code   sql.NullString
		codeAt sql.NullTime
	)
	err := scanner.Scan(&e.ID, &e.OngID, &e.CategoryID, &e.Title, &e.Description, &e.Location,
		&e.StartTime, &e.DurationMinutes, &e.Capacity, &e.Reserved, &e.Cancelled,
		&code, &codeAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.CheckInCode = code.String
	if codeAt.Valid {
		e.CheckInCodeAt = &codeAt.Time
	}
	return e, nil
}

// Create publishes a new event for the caller's ONG.
func (s *service) Create(ctx context.Context, ongUserID uuid.UUID, in CreateInput) (*Event, error) {
	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration_minutes must be positive")
	}
	if in.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1")
	}
	if !in.StartTime.After(s.clk.Now()) {
		return nil, ErrStartInPast
	}

	var categoryExists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, in.CategoryID).Scan(&categoryExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check category: %w", err)
	}
	if !categoryExists {
		return nil, ErrCategoryNotFound
	}

	e := &Event{
		ID:              uuid.New(),
		OngID:           ongID,
		CategoryID:      in.CategoryID,
		Title:           in.Title,
		Description:     in.Description,
		Location:        in.Location,
		StartTime:       in.StartTime.UTC(),
		DurationMinutes: in.DurationMinutes,
		Capacity:        in.Capacity,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, ong_id, category_id, title, description, location, start_time, duration_minutes, capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, e.ID, e.OngID, e.CategoryID, e.Title, e.Description, e.Location, e.StartTime,
		e.DurationMinutes, e.Capacity).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	logrus.WithFields(logrus.Fields{"event_id": e.ID, "ong_id": ongID}).Info("event created")
	return e, nil
}

// Get returns one event with its derived phase.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.ong_id, e.category_id, e.title, e.description, e.location, e.start_time,
		       e.duration_minutes, e.capacity, e.reserved, e.cancelled, e.check_in_code,
		       e.check_in_code_at, e.created_at, e.updated_at, c.name, o.name
		FROM events e
		JOIN categories c ON c.id = e.category_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE e.id = $1
	`, id)

	view, err := scanView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	view.Phase = view.Event.Phase(s.clk.Now())
	return view, nil
}

func scanView(scanner interface{ Scan(...interface{}) error }) (*View, error) {
	v := &View{}
	var (
		code   sql.NullString
		codeAt sql.NullTime
	)
	err := scanner.Scan(&v.ID, &v.OngID, &v.CategoryID, &v.Title, &v.Description, &v.Location,
		&v.StartTime, &v.DurationMinutes, &v.Capacity, &v.Reserved, &v.Cancelled,
		&code, &codeAt, &v.CreatedAt, &v.UpdatedAt, &v.CategoryName, &v.OngName)
	if err != nil {
		return nil, err
	}
	v.CheckInCode = code.String
	if codeAt.Valid {
		v.CheckInCodeAt = &codeAt.Time
	}
	return v, nil
}

// Update edits an event owned by the caller's ONG. Capacity may not drop
// below the currently reserved slots; that guard is evaluated inside the
// UPDATE so it holds against concurrent reservations.
func (s *service) Update(ctx context.Context, ongUserID, id uuid.UUID, in UpdateInput) (*Event, error) {
	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	current, err := s.getOwned(ctx, id, ongID)
	if err != nil {
		return nil, err
	}
	if current.Cancelled {
		return nil, ErrAlreadyCancelled
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1")
	}
	if in.DurationMinutes != nil && *in.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration_minutes must be positive")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			category_id      = COALESCE($3, category_id),
			title            = COALESCE($4, title),
			description      = COALESCE($5, description),
			location         = COALESCE($6, location),
			start_time       = COALESCE($7, start_time),
			duration_minutes = COALESCE($8, duration_minutes),
			capacity         = COALESCE($9, capacity),
			updated_at       = NOW()
		WHERE id = $1 AND ong_id = $2 AND COALESCE($9, capacity) >= reserved
	`, id, ongID, in.CategoryID, in.Title, in.Description, in.Location, in.StartTime,
		in.DurationMinutes, in.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrCapacityBelowReserved
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

// Cancel sets the terminal override and releases every live application.
func (s *service) Cancel(ctx context.Context, ongUserID, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "event.cancel",
		trace.WithAttributes(attribute.String("event.id", id.String())),
	)
	defer span.End()

	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return err
	}

	current, err := s.getOwned(ctx, id, ongID)
	if err != nil {
		return err
	}
	if current.Cancelled {
		return ErrAlreadyCancelled
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE event_applications SET status = 'CANCELLED', updated_at = NOW()
		WHERE event_id = $1 AND status IN ('PENDING', 'ACCEPTED')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel applications: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET cancelled = TRUE, reserved = 0, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{"event_id": id, "ong_id": ongID}).Info("event cancelled")
	return nil
}

func (s *service) getOwned(ctx context.Context, id, ongID uuid.UUID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if e.OngID != ongID {
		return nil, ErrNotOwner
	}
	return e, nil
}

// ListOpen returns SCHEDULED events a volunteer can still discover. Events
// the calling volunteer already applied to are filtered out, matching what
// the apply flow would reject anyway.
func (s *service) ListOpen(ctx context.Context, callerUserID uuid.UUID) ([]View, error) {
	var volunteerID uuid.UUID
	if callerUserID != uuid.Nil {
		id, err := s.profiles.VolunteerProfileID(ctx, callerUserID)
		if err == nil {
			volunteerID = id
		} else if !errors.Is(err, identity.ErrNotAVolunteer) {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.ong_id, e.category_id, e.title, e.description, e.location, e.start_time,
		       e.duration_minutes, e.capacity, e.reserved, e.cancelled, NULL, NULL,
		       e.created_at, e.updated_at, c.name, o.name
		FROM events e
		JOIN categories c ON c.id = e.category_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE NOT e.cancelled
		  AND e.start_time > $1
		  AND ($2::uuid IS NULL OR NOT EXISTS (
			SELECT 1 FROM event_applications a
			WHERE a.event_id = e.id AND a.volunteer_id = $2
		  ))
		ORDER BY e.start_time ASC
	`, s.clk.Now(), nullableID(volunteerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return s.collectViews(rows)
}

// ListByOng returns every event of the caller's ONG, soonest first.
func (s *service) ListByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error) {
	return s.listForOng(ctx, ongUserID, nil)
}

// ListActiveByOng returns the ONG's SCHEDULED and IN_PROGRESS events.
func (s *service) ListActiveByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error) {
	active := []string{PhaseScheduled, PhaseInProgress}
	return s.listForOng(ctx, ongUserID, active)
}

// ListPastByOng returns the ONG's COMPLETED and CANCELLED events.
func (s *service) ListPastByOng(ctx context.Context, ongUserID uuid.UUID) ([]View, error) {
	past := []string{PhaseCompleted, PhaseCancelled}
	return s.listForOng(ctx, ongUserID, past)
}

func (s *service) listForOng(ctx context.Context, ongUserID uuid.UUID, phases []string) ([]View, error) {
	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.ong_id, e.category_id, e.title, e.description, e.location, e.start_time,
		       e.duration_minutes, e.capacity, e.reserved, e.cancelled, e.check_in_code,
		       e.check_in_code_at, e.created_at, e.updated_at, c.name, o.name
		FROM events e
		JOIN categories c ON c.id = e.category_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE e.ong_id = $1
		ORDER BY e.start_time ASC
	`, ongID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ong events: %w", err)
	}

	views, err := s.collectViews(rows)
	if err != nil {
		return nil, err
	}
	if phases == nil {
		return views, nil
	}

	filtered := views[:0]
	for _, v := range views {
		for _, p := range phases {
			if v.Phase == p {
				filtered = append(filtered, v)
				break
			}
		}
	}
	return filtered, nil
}

func (s *service) collectViews(rows *sql.Rows) ([]View, error) {
	defer rows.Close()
	now := s.clk.Now()

	var views []View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		v.Phase = v.Event.Phase(now)
		views = append(views, *v)
	}
	return views, rows.Err()
}

// nullableID maps uuid.Nil onto SQL NULL for optional filters.
func nullableID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}
