// internal/review/implementation.go
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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
	tracer   trace.Tracer
}

// NewService creates a new review service instance.
func NewService(db *sql.DB, profiles identity.Service, clk clock.Clock) Service {
	return &service{
		db:       db,
		profiles: profiles,
		clk:      clk,
		tracer:   otel.Tracer("voluntaris/review"),
	}
}

// anchor is the slice of an application and its event that gates every
// review mutation.
type anchor struct {
	applicationID uuid.UUID
	volunteerID   uuid.UUID
	ongID         uuid.UUID
	checkedIn     bool
	checkInAt     sql.NullTime
	startTime     time.Time
	durationMin   int
	cancelled     bool
}

func (s *service) getAnchor(ctx context.Context, applicationID uuid.UUID) (*anchor, error) {
	an := &anchor{}
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.volunteer_id, e.ong_id, a.checked_in, a.check_in_at,
		       e.start_time, e.duration_minutes, e.cancelled
		FROM event_applications a
		JOIN events e ON e.id = a.event_id
		WHERE a.id = $1
	`, applicationID).Scan(&an.applicationID, &an.volunteerID, &an.ongID, &an.checkedIn,
		&an.checkInAt, &an.startTime, &an.durationMin, &an.cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return an, nil
}

// Create writes a review and recomputes the ONG aggregate in one
// transaction. The uniqueness of one review per application is enforced by
// the database, so a concurrent double-submit resolves to ErrAlreadyReviewed.
func (s *service) Create(ctx context.Context, volunteerUserID uuid.UUID, in CreateInput) (*Review, error) {
	ctx, span := s.tracer.Start(ctx, "review.create",
		trace.WithAttributes(attribute.String("application.id", in.ApplicationID.String())),
	)
	defer span.End()

	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}

	an, err := s.getAnchor(ctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if an.volunteerID != volunteerID {
		return nil, ErrNotOwner
	}
	if !an.checkedIn || !an.checkInAt.Valid {
		return nil, ErrNotCheckedIn
	}

	now := s.clk.Now()
	e := event.Event{StartTime: an.startTime, DurationMinutes: an.durationMin, Cancelled: an.cancelled}
	if phase := e.Phase(now); phase != event.PhaseInProgress && phase != event.PhaseCompleted {
		return nil, ErrInvalidPhase
	}
	if !InsideWindow(an.checkInAt.Time, now) {
		return nil, ErrWindowClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rv := &Review{
		ID:            uuid.New(),
		ApplicationID: in.ApplicationID,
		Rating:        in.Rating,
		Comment:       in.Comment,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reviews (id, application_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, rv.ID, rv.ApplicationID, rv.Rating, rv.Comment).Scan(&rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("failed to insert review: %w", err)
	}

	if err := s.recomputeOngRating(ctx, tx, an.ongID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.ReviewsWritten.Inc()
	logrus.WithFields(logrus.Fields{
		"review_id": rv.ID,
		"ong_id":    an.ongID,
		"rating":    rv.Rating,
	}).Info("review created")
	return rv, nil
}

// Update edits the caller's review inside its window and recomputes the
// aggregate, since the rating may have changed.
func (s *service) Update(ctx context.Context, volunteerUserID, reviewID uuid.UUID, in UpdateInput) (*Review, error) {
	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, ErrInvalidRating
	}

	rv, an, err := s.getOwned(ctx, reviewID, volunteerID)
	if err != nil {
		return nil, err
	}
	if !InsideWindow(an.checkInAt.Time, s.clk.Now()) {
		return nil, ErrWindowClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		UPDATE reviews SET
			rating     = COALESCE($2, rating),
			comment    = COALESCE($3, comment),
			updated_at = NOW()
		WHERE id = $1
		RETURNING rating, comment, updated_at
	`, reviewID, in.Rating, in.Comment).Scan(&rv.Rating, &rv.Comment, &rv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}

	if err := s.recomputeOngRating(ctx, tx, an.ongID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return rv, nil
}

// Delete removes the caller's review inside its window and recomputes the
// aggregate without it.
func (s *service) Delete(ctx context.Context, volunteerUserID, reviewID uuid.UUID) error {
	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return err
	}

	_, an, err := s.getOwned(ctx, reviewID, volunteerID)
	if err != nil {
		return err
	}
	if !InsideWindow(an.checkInAt.Time, s.clk.Now()) {
		return ErrWindowClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, reviewID); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if err := s.recomputeOngRating(ctx, tx, an.ongID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{"review_id": reviewID}).Info("review deleted")
	return nil
}

// recomputeOngRating rebuilds the ONG's denormalized rating from scratch.
// Always the full aggregate, never an incremental adjustment, so the stored
// numbers cannot drift from the review rows.
func (s *service) recomputeOngRating(ctx context.Context, tx *sql.Tx, ongID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ong_profiles SET
			average_rating = stats.avg_rating,
			total_reviews  = stats.total
		FROM (
			SELECT COALESCE(ROUND(AVG(r.rating), 2), 0) AS avg_rating, COUNT(*) AS total
			FROM reviews r
			JOIN event_applications a ON a.id = r.application_id
			JOIN events e ON e.id = a.event_id
			WHERE e.ong_id = $1
		) AS stats
		WHERE ong_profiles.id = $1
	`, ongID)
	if err != nil {
		return fmt.Errorf("failed to recompute ong rating: %w", err)
	}
	return nil
}

func (s *service) getOwned(ctx context.Context, reviewID, volunteerID uuid.UUID) (*Review, *anchor, error) {
	rv := &Review{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, rating, comment, created_at, updated_at
		FROM reviews WHERE id = $1
	`, reviewID).Scan(&rv.ID, &rv.ApplicationID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get review: %w", err)
	}

	an, err := s.getAnchor(ctx, rv.ApplicationID)
	if err != nil {
		return nil, nil, err
	}
	if an.volunteerID != volunteerID {
		return nil, nil, ErrNotOwner
	}
	return rv, an, nil
}

// ListByOng returns one page of an ONG's reviews, newest first, under the
// denormalized rating header.
func (s *service) ListByOng(ctx context.Context, ongID uuid.UUID, page, pageSize int) (*OngReviews, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	out := &OngReviews{OngID: ongID, Page: page, PageSize: pageSize}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, average_rating, total_reviews FROM ong_profiles WHERE id = $1
	`, ongID).Scan(&out.OngName, &out.AverageRating, &out.TotalReviews)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotAnOng
		}
		return nil, fmt.Errorf("failed to get ong profile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.application_id, r.rating, r.comment, r.created_at, r.updated_at,
		       e.title, v.full_name
		FROM reviews r
		JOIN event_applications a ON a.id = r.application_id
		JOIN events e ON e.id = a.event_id
		JOIN volunteer_profiles v ON v.id = a.volunteer_id
		WHERE e.ong_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, ongID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v View
		err := rows.Scan(&v.ID, &v.ApplicationID, &v.Rating, &v.Comment, &v.CreatedAt, &v.UpdatedAt,
			&v.EventTitle, &v.VolunteerName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		out.Reviews = append(out.Reviews, v)
	}
	return out, rows.Err()
}

// Mine returns the calling volunteer's reviews, newest first.
func (s *service) Mine(ctx context.Context, volunteerUserID uuid.UUID) ([]View, error) {
	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.application_id, r.rating, r.comment, r.created_at, r.updated_at,
		       e.title, o.name
		FROM reviews r
		JOIN event_applications a ON a.id = r.application_id
		JOIN events e ON e.id = a.event_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE a.volunteer_id = $1
		ORDER BY r.created_at DESC
	`, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var v View
		err := rows.Scan(&v.ID, &v.ApplicationID, &v.Rating, &v.Comment, &v.CreatedAt, &v.UpdatedAt,
			&v.EventTitle, &v.OngName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListEligible returns the volunteer's checked-in, unreviewed applications
// whose window is still open, with the hours left in each.
func (s *service) ListEligible(ctx context.Context, volunteerUserID uuid.UUID) ([]Eligible, error) {
	volunteerID, err := s.profiles.VolunteerProfileID(ctx, volunteerUserID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, e.id, e.title, o.name, a.check_in_at
		FROM event_applications a
		JOIN events e ON e.id = a.event_id
		JOIN ong_profiles o ON o.id = e.ong_id
		WHERE a.volunteer_id = $1
		  AND a.checked_in
		  AND a.check_in_at > $2
		  AND NOT EXISTS (SELECT 1 FROM reviews r WHERE r.application_id = a.id)
		ORDER BY a.check_in_at ASC
	`, volunteerID, now.Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible applications: %w", err)
	}
	defer rows.Close()

	var eligible []Eligible
	for rows.Next() {
		var el Eligible
		err := rows.Scan(&el.ApplicationID, &el.EventID, &el.EventTitle, &el.OngName, &el.CheckInAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eligible application: %w", err)
		}
		el.HoursRemaining = (Window - now.Sub(el.CheckInAt)).Hours()
		eligible = append(eligible, el)
	}
	return eligible, rows.Err()
}
