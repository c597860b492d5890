// internal/application/implementation.go
package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voluntaris/internal/clock"
	"voluntaris/internal/event"
	"voluntaris/internal/identity"
	"voluntaris/internal/metrics"
)

// service implements the Service interface.
type service struct {
	db       *sql.DB
	profiles identity.Service
	clk      clock.Clock
	ledger   Ledger
	tracer   trace.Tracer
}

// NewService creates a new application service instance.
func NewService(db *sql.DB, profiles identity.Service, clk clock.Clock) Service {
	return &service{
		db:       db,
		profiles: profiles,
		clk:      clk,
		tracer:   otel.Tracer("voluntaris/application"),
	}
}

const applicationColumns = `id, event_id, volunteer_id, status, applied_at, checked_in, check_in_at, updated_at`

func scanApplication(scanner interface{ Scan(...interface{}) error }) (*Application, error) {
	a := &Application{}
	var checkInAt sql.NullTime
	err := scanner.Scan(&a.ID, &a.EventID, &a.VolunteerID, &a.Status, &a.AppliedAt,
		&a.CheckedIn, &checkInAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if checkInAt.Valid {
		a.CheckInAt = &checkInAt.Time
	}
	return a, nil
}

// Apply creates a PENDING application. The slot reservation and the insert
// share one transaction: either both land or neither does, so a full event
// never gains an application and a failed insert never leaks a slot.
func (s *service) Apply(ctx context.Context, volunteerUserID, eventID uuid.UUID) (*Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.apply",
		trace.WithAttributes(attribute.String("event.id", eventID.String())),
	)
	defer span.End()

	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	e, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	if e.Phase(now) != event.PhaseScheduled {
		return nil, ErrInvalidPhase
	}
	if !InsideCutoff(e.StartTime, now) {
		return nil, ErrWindowClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledger.Reserve(ctx, tx, eventID); err != nil {
		if errors.Is(err, ErrCapacityFull) {
			metrics.CapacityConflicts.Inc()
		}
		return nil, err
	}

	a := &Application{
		ID:          uuid.New(),
		EventID:     eventID,
		VolunteerID: volunteerID,
		Status:      StatusPending,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO event_applications (id, event_id, volunteer_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING applied_at, updated_at
	`, a.ID, a.EventID, a.VolunteerID, a.Status).Scan(&a.AppliedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert application: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.ApplicationsCreated.Inc()
	logrus.WithFields(logrus.Fields{
		"application_id": a.ID,
		"event_id":       eventID,
		"volunteer_id":   volunteerID,
	}).Info("application created")
	return a, nil
}

// Cancel withdraws the volunteer's own application. Same 48h gate as apply:
// inside the window the slot is considered committed.
func (s *service) Cancel(ctx context.Context, volunteerUserID, applicationID uuid.UUID) (*Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.cancel",
		trace.WithAttributes(attribute.String("application.id", applicationID.String())),
	)
	defer span.End()

	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	a, e, err := s.getWithEvent(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if a.VolunteerID != volunteerID {
		return nil, ErrNotOwner
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}
	if !InsideCutoff(e.StartTime, s.clk.Now()) {
		return nil, ErrWindowClosed
	}

	return s.transition(ctx, a, StatusCancelled, true)
}

// Decide is the ONG-side verdict on a candidate. Rejecting from either live
// status releases the slot; a later re-accept is not possible.
func (s *service) Decide(ctx context.Context, ongUserID, applicationID uuid.UUID, newStatus string) (*Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.decide",
		trace.WithAttributes(
			attribute.String("application.id", applicationID.String()),
			attribute.String("application.status", newStatus),
		),
	)
	defer span.End()

	if newStatus != StatusAccepted && newStatus != StatusRejected {
		return nil, fmt.Errorf("status must be %s or %s", StatusAccepted, StatusRejected)
	}

	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	a, e, err := s.getWithEvent(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if e.OngID != ongID {
		return nil, ErrNotOwner
	}
	if !CanTransition(a.Status, newStatus) {
		return nil, ErrInvalidTransition
	}

	return s.transition(ctx, a, newStatus, newStatus == StatusRejected)
}

// transition flips a live application to newStatus and, when the new status
// no longer counts against capacity, releases the slot in the same
// transaction. The status predicate is re-checked inside the UPDATE so a
// concurrent transition loses cleanly instead of double-releasing.
func (s *service) transition(ctx context.Context, a *Application, newStatus string, release bool) (*Application, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE event_applications SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'ACCEPTED')
	`, a.ID, newStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if release {
		if err := s.ledger.Release(ctx, tx, a.EventID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"application_id": a.ID,
		"from":           a.Status,
		"to":             newStatus,
	}).Info("application transitioned")
	return s.get(ctx, a.ID)
}

// CheckIn records attendance. The volunteer must hold an ACCEPTED
// application and present the code issued for the running event.
func (s *service) CheckIn(ctx context.Context, volunteerUserID, eventID uuid.UUID, code string) (*Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.check_in",
		trace.WithAttributes(attribute.String("event.id", eventID.String())),
	)
	defer span.End()

	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	e, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.Phase(s.clk.Now()) != event.PhaseInProgress {
		return nil, ErrInvalidPhase
	}
	if e.CheckInCode == "" {
		return nil, ErrCodeNotIssued
	}
	if e.CheckInCode != code {
		return nil, ErrCodeMismatch
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM event_applications
		WHERE event_id = $1 AND volunteer_id = $2
	`, eventID, volunteerID)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if a.Status != StatusAccepted {
		return nil, ErrInvalidTransition
	}
	if a.CheckedIn {
		return nil, ErrAlreadyCheckedIn
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE event_applications SET checked_in = TRUE, check_in_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'ACCEPTED' AND NOT checked_in
	`, a.ID, s.clk.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyCheckedIn
	}

	metrics.CheckIns.Inc()
	logrus.WithFields(logrus.Fields{
		"application_id": a.ID,
		"event_id":       eventID,
	}).Info("volunteer checked in")
	return s.get(ctx, a.ID)
}

// IssueCheckInCode returns the event's code, minting it on first call. The
// mint is a conditional write on code IS NULL, so concurrent requests all
// end up announcing the same code.
func (s *service) IssueCheckInCode(ctx context.Context, ongUserID, eventID uuid.UUID) (*CheckInCode, error) {
	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	e, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.OngID != ongID {
		return nil, event.ErrNotOwner
	}
	if e.Phase(s.clk.Now()) != event.PhaseInProgress {
		return nil, ErrInvalidPhase
	}
	if e.CheckInCode != "" {
		return &CheckInCode{Code: e.CheckInCode, IssuedAt: *e.CheckInCodeAt}, nil
	}

	code := newCheckInCode()
	issuedAt := s.clk.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET check_in_code = $2, check_in_code_at = $3, updated_at = NOW()
		WHERE id = $1 AND check_in_code IS NULL
	`, eventID, code, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue check-in code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the race; somebody else minted first. Serve theirs.
		e, err = s.getEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return &CheckInCode{Code: e.CheckInCode, IssuedAt: *e.CheckInCodeAt}, nil
	}

	logrus.WithFields(logrus.Fields{"event_id": eventID}).Info("check-in code issued")
	return &CheckInCode{Code: code, IssuedAt: issuedAt}, nil
}

// ListActive returns the volunteer's live applications on events that have
// not finished.
func (s *service) ListActive(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error) {
	return s.listForVolunteer(ctx, volunteerUserID, func(v EventView) bool {
		return CountsReserved(v.ApplicationStatus) &&
			(v.Phase == event.PhaseScheduled || v.Phase == event.PhaseInProgress)
	})
}

// ListPast returns the volunteer's history: finished or cancelled events,
// plus applications the volunteer withdrew.
func (s *service) ListPast(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error) {
	return s.listForVolunteer(ctx, volunteerUserID, func(v EventView) bool {
		return v.Phase == event.PhaseCompleted || v.Phase == event.PhaseCancelled ||
			!CountsReserved(v.ApplicationStatus)
	})
}

// Notifications returns running events awaiting the volunteer's check-in.
func (s *service) Notifications(ctx context.Context, volunteerUserID uuid.UUID) ([]EventView, error) {
	return s.listForVolunteer(ctx, volunteerUserID, func(v EventView) bool {
		return v.Phase == event.PhaseInProgress &&
			v.ApplicationStatus == StatusAccepted && !v.CheckedIn
	})
}

// listForVolunteer loads the volunteer's applications joined to their events
// and filters by the derived phase in Go; phases are projections of the
// clock, not stored state, so they cannot be predicated in SQL.
func (s *service) listForVolunteer(ctx context.Context, volunteerUserID uuid.UUID, keep func(EventView) bool) ([]EventView, error) {
	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.ong_id, e.category_id, e.title, e.description, e.location, e.start_time,
		       e.duration_minutes, e.capacity, e.reserved, e.cancelled, e.created_at, e.updated_at,
		       c.name, o.name, a.id, a.status, a.checked_in
		FROM event_applications a
		JOIN events e ON e.id = a.event_id
		JOIN categories c ON c.id = e.category_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE a.volunteer_id = $1
		ORDER BY e.start_time ASC
	`, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	now := s.clk.Now()
	var views []EventView
	for rows.Next() {
		var v EventView
		err := rows.Scan(&v.ID, &v.OngID, &v.CategoryID, &v.Title, &v.Description, &v.Location,
			&v.StartTime, &v.DurationMinutes, &v.Capacity, &v.Reserved, &v.Cancelled,
			&v.CreatedAt, &v.UpdatedAt, &v.CategoryName, &v.OngName,
			&v.ApplicationID, &v.ApplicationStatus, &v.CheckedIn)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		v.Phase = v.Event.Phase(now)
		if keep(v) {
			views = append(views, v)
		}
	}
	return views, rows.Err()
}

// ListByEvent returns an event's live candidates to its owning ONG.
func (s *service) ListByEvent(ctx context.Context, ongUserID, eventID uuid.UUID) ([]Candidate, error) {
	ongID, err := s.profiles.OngProfileID(ctx, ongUserID)
	if err != nil {
		return nil, err
	}

	e, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.OngID != ongID {
		return nil, event.ErrNotOwner
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.event_id, a.volunteer_id, a.status, a.applied_at, a.checked_in,
		       a.check_in_at, a.updated_at, v.full_name
		FROM event_applications a
		JOIN volunteer_profiles v ON v.id = a.volunteer_id
		WHERE a.event_id = $1 AND a.status IN ('PENDING', 'ACCEPTED')
		ORDER BY a.applied_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			c         Candidate
			checkInAt sql.NullTime
		)
		err := rows.Scan(&c.ID, &c.EventID, &c.VolunteerID, &c.Status, &c.AppliedAt,
			&c.CheckedIn, &checkInAt, &c.UpdatedAt, &c.VolunteerName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if checkInAt.Valid {
			c.CheckInAt = &checkInAt.Time
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *service) get(ctx context.Context, id uuid.UUID) (*Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM event_applications WHERE id = $1`, id)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

func (s *service) getWithEvent(ctx context.Context, id uuid.UUID) (*Application, *event.Event, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.getEvent(ctx, a.EventID)
	if err != nil {
		return nil, nil, err
	}
	return a, e, nil
}

func (s *service) getEvent(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	e := &event.Event{}
	var (
		code   sql.NullString
		codeAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ong_id, start_time, duration_minutes, cancelled, check_in_code, check_in_code_at
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.OngID, &e.StartTime, &e.DurationMinutes, &e.Cancelled, &code, &codeAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	e.CheckInCode = code.String
	if codeAt.Valid {
		e.CheckInCodeAt = &codeAt.Time
	}
	return e, nil
}
