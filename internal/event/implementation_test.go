// internal/event/implementation_test.go
package event

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voluntaris/internal/clock"
	"voluntaris/internal/identity"
)

// setupTestDB attempts to connect to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "user"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "testdb"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("skipping db tests: could not connect to postgres: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			password_salt TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS volunteer_profiles (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users(id),
			full_name TEXT NOT NULL,
			cpf TEXT NOT NULL UNIQUE,
			birth_date TIMESTAMPTZ,
			phone TEXT NOT NULL DEFAULT '',
			cep TEXT NOT NULL DEFAULT '',
			street TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL DEFAULT '',
			complement TEXT NOT NULL DEFAULT '',
			neighborhood TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			experiences TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS ong_profiles (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users(id),
			name TEXT NOT NULL,
			cnpj TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			cep TEXT NOT NULL DEFAULT '',
			street TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL DEFAULT '',
			complement TEXT NOT NULL DEFAULT '',
			neighborhood TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			responsible_name TEXT NOT NULL DEFAULT '',
			responsible_cpf TEXT NOT NULL DEFAULT '',
			responsible_email TEXT NOT NULL DEFAULT '',
			document_url TEXT NOT NULL DEFAULT '',
			average_rating NUMERIC(3,2) NOT NULL DEFAULT 0,
			total_reviews INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			ong_id UUID NOT NULL REFERENCES ong_profiles(id),
			category_id UUID NOT NULL REFERENCES categories(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			capacity INTEGER NOT NULL CHECK (capacity >= 1),
			reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= capacity),
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			check_in_code TEXT,
			check_in_code_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS event_applications (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES events(id),
			volunteer_id UUID NOT NULL REFERENCES volunteer_profiles(id),
			status TEXT NOT NULL DEFAULT 'PENDING',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checked_in BOOLEAN NOT NULL DEFAULT FALSE,
			check_in_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (event_id, volunteer_id)
		);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

type eventFixture struct {
	t  *testing.T
	db *sql.DB

	ongUserID    uuid.UUID
	ongProfileID uuid.UUID
	categoryID   uuid.UUID
}

func newEventFixture(t *testing.T, db *sql.DB) *eventFixture {
	t.Helper()
	f := &eventFixture{
		t: t, db: db,
		ongUserID: uuid.New(), ongProfileID: uuid.New(), categoryID: uuid.New(),
	}

	_, err := db.Exec(`
		INSERT INTO users (id, email, password_hash, password_salt, role)
		VALUES ($1, $2, 'x', 'x', 'ONG')
	`, f.ongUserID, fmt.Sprintf("o-%s@test.local", f.ongUserID))
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO ong_profiles (id, user_id, name, cnpj)
		VALUES ($1, $2, 'Event Ong', $3)
	`, f.ongProfileID, f.ongUserID, f.ongUserID.String())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO categories (id, name) VALUES ($1, $2)`,
		f.categoryID, "cat-"+f.categoryID.String())
	require.NoError(t, err)
	return f
}

// liveApplications seeds n PENDING applications and bumps reserved to match.
func (f *eventFixture) liveApplications(eventID uuid.UUID, n int) []uuid.UUID {
	f.t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		userID, profileID := uuid.New(), uuid.New()
		_, err := f.db.Exec(`
			INSERT INTO users (id, email, password_hash, password_salt, role)
			VALUES ($1, $2, 'x', 'x', 'VOLUNTEER')
		`, userID, fmt.Sprintf("v-%s@test.local", userID))
		require.NoError(f.t, err)
		_, err = f.db.Exec(`
			INSERT INTO volunteer_profiles (id, user_id, full_name, cpf)
			VALUES ($1, $2, 'Applicant', $3)
		`, profileID, userID, userID.String())
		require.NoError(f.t, err)

		ids[i] = uuid.New()
		_, err = f.db.Exec(`
			INSERT INTO event_applications (id, event_id, volunteer_id, status)
			VALUES ($1, $2, $3, 'PENDING')
		`, ids[i], eventID, profileID)
		require.NoError(f.t, err)
	}
	_, err := f.db.Exec(`UPDATE events SET reserved = reserved + $2 WHERE id = $1`, eventID, n)
	require.NoError(f.t, err)
	return ids
}

func TestCreateValidations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := newEventFixture(t, db)

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(db, identity.NewService(db), clk)

	valid := CreateInput{
		CategoryID:      f.categoryID,
		Title:           "Beach cleanup",
		StartTime:       clk.Now().Add(72 * time.Hour),
		DurationMinutes: 180,
		Capacity:        20,
	}

	e, err := svc.Create(context.Background(), f.ongUserID, valid)
	require.NoError(t, err)
	assert.Equal(t, f.ongProfileID, e.OngID)
	assert.Equal(t, 0, e.Reserved)

	past := valid
	past.StartTime = clk.Now().Add(-time.Hour)
	_, err = svc.Create(context.Background(), f.ongUserID, past)
	assert.ErrorIs(t, err, ErrStartInPast)

	badCategory := valid
	badCategory.CategoryID = uuid.New()
	_, err = svc.Create(context.Background(), f.ongUserID, badCategory)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestUpdateCapacityCannotDropBelowReserved(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := newEventFixture(t, db)

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(db, identity.NewService(db), clk)

	e, err := svc.Create(context.Background(), f.ongUserID, CreateInput{
		CategoryID:      f.categoryID,
		Title:           "Food drive",
		StartTime:       clk.Now().Add(72 * time.Hour),
		DurationMinutes: 120,
		Capacity:        10,
	})
	require.NoError(t, err)
	f.liveApplications(e.ID, 3)

	two := 2
	_, err = svc.Update(context.Background(), f.ongUserID, e.ID, UpdateInput{Capacity: &two})
	assert.ErrorIs(t, err, ErrCapacityBelowReserved)

	three := 3
	updated, err := svc.Update(context.Background(), f.ongUserID, e.ID, UpdateInput{Capacity: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Capacity)
	assert.Equal(t, 3, updated.Reserved)
}

func TestCancelReleasesEveryLiveApplication(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := newEventFixture(t, db)

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(db, identity.NewService(db), clk)

	e, err := svc.Create(context.Background(), f.ongUserID, CreateInput{
		CategoryID:      f.categoryID,
		Title:           "Park restoration",
		StartTime:       clk.Now().Add(72 * time.Hour),
		DurationMinutes: 240,
		Capacity:        10,
	})
	require.NoError(t, err)
	appIDs := f.liveApplications(e.ID, 2)

	require.NoError(t, svc.Cancel(context.Background(), f.ongUserID, e.ID))

	view, err := svc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCancelled, view.Phase)
	assert.Equal(t, 0, view.Reserved)

	for _, id := range appIDs {
		var status string
		require.NoError(t, db.QueryRow(
			`SELECT status FROM event_applications WHERE id = $1`, id).Scan(&status))
		assert.Equal(t, "CANCELLED", status)
	}

	err = svc.Cancel(context.Background(), f.ongUserID, e.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}
