// internal/application/implementation_test.go
package application

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
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

	createSchema(t, db)
	return db
}

func createSchema(t testing.TB, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
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
		CREATE TABLE IF NOT EXISTS reviews (
			id UUID PRIMARY KEY,
			application_id UUID NOT NULL UNIQUE REFERENCES event_applications(id),
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
}

// fixture seeds profiles and events directly, bypassing the registration flow.
type fixture struct {
	t  testing.TB
	db *sql.DB
}

type account struct {
	userID    uuid.UUID
	profileID uuid.UUID
}

func (f fixture) volunteer() account {
	f.t.Helper()
	acc := account{userID: uuid.New(), profileID: uuid.New()}

	_, err := f.db.Exec(`
		INSERT INTO users (id, email, password_hash, password_salt, role)
		VALUES ($1, $2, 'x', 'x', 'VOLUNTEER')
	`, acc.userID, fmt.Sprintf("v-%s@test.local", acc.userID))
	require.NoError(f.t, err)

	_, err = f.db.Exec(`
		INSERT INTO volunteer_profiles (id, user_id, full_name, cpf)
		VALUES ($1, $2, 'Test Volunteer', $3)
	`, acc.profileID, acc.userID, acc.userID.String())
	require.NoError(f.t, err)
	return acc
}

func (f fixture) ong() account {
	f.t.Helper()
	acc := account{userID: uuid.New(), profileID: uuid.New()}

	_, err := f.db.Exec(`
		INSERT INTO users (id, email, password_hash, password_salt, role)
		VALUES ($1, $2, 'x', 'x', 'ONG')
	`, acc.userID, fmt.Sprintf("o-%s@test.local", acc.userID))
	require.NoError(f.t, err)

	_, err = f.db.Exec(`
		INSERT INTO ong_profiles (id, user_id, name, cnpj)
		VALUES ($1, $2, 'Test Ong', $3)
	`, acc.profileID, acc.userID, acc.userID.String())
	require.NoError(f.t, err)
	return acc
}

func (f fixture) category() uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	_, err := f.db.Exec(`INSERT INTO categories (id, name) VALUES ($1, $2)`, id, "cat-"+id.String())
	require.NoError(f.t, err)
	return id
}

func (f fixture) event(ong account, start time.Time, durationMin, capacity int) uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	_, err := f.db.Exec(`
		INSERT INTO events (id, ong_id, category_id, title, start_time, duration_minutes, capacity)
		VALUES ($1, $2, $3, 'Test Event', $4, $5, $6)
	`, id, ong.profileID, f.category(), start, durationMin, capacity)
	require.NoError(f.t, err)
	return id
}

func (f fixture) reserved(eventID uuid.UUID) int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.QueryRow(`SELECT reserved FROM events WHERE id = $1`, eventID).Scan(&n))
	return n
}

func newTestService(db *sql.DB, clk clock.Clock) Service {
	return NewService(db, identity.NewService(db), clk)
}

func TestApplyReservesSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	ong := f.ong()
	vol := f.volunteer()
	eventID := f.event(ong, clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, eventID, a.EventID)
	assert.Equal(t, 1, f.reserved(eventID))
}

func TestApplyDuplicateRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	vol := f.volunteer()
	eventID := f.event(f.ong(), clk.Now().Add(72*time.Hour), 120, 5)

	_, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), vol.userID, eventID)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, f.reserved(eventID), "failed apply must not leak a slot")
}

func TestApplyWindowClosed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	vol := f.volunteer()
	eventID := f.event(f.ong(), clk.Now().Add(47*time.Hour), 120, 5)

	_, err := svc.Apply(context.Background(), vol.userID, eventID)
	assert.ErrorIs(t, err, ErrWindowClosed)
	assert.Equal(t, 0, f.reserved(eventID))
}

// TestApplyCapacityRace fires more concurrent applications than the event
// can hold: exactly capacity must succeed and the rest fail with
// ErrCapacityFull, with reserved landing exactly on capacity.
func TestApplyCapacityRace(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	const capacity, contenders = 3, 8
	eventID := f.event(f.ong(), clk.Now().Add(72*time.Hour), 120, capacity)

	volunteers := make([]account, contenders)
	for i := range volunteers {
		volunteers[i] = f.volunteer()
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Apply(context.Background(), volunteers[i].userID, eventID)
		}(i)
	}
	wg.Wait()

	var succeeded, full int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrCapacityFull):
			full++
		}
	}
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, contenders-capacity, full)
	assert.Equal(t, capacity, f.reserved(eventID))
}

func TestCancelReleasesSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	vol := f.volunteer()
	eventID := f.event(f.ong(), clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)
	require.Equal(t, 1, f.reserved(eventID))

	cancelled, err := svc.Cancel(context.Background(), vol.userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.reserved(eventID), "cancel must return the slot")

	_, err = svc.Cancel(context.Background(), vol.userID, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.reserved(eventID), "repeated cancel must not release twice")
}

func TestCancelWindowClosed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	vol := f.volunteer()
	eventID := f.event(f.ong(), clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	// The event is now closer than 48h; the commitment holds.
	clk.Advance(25 * time.Hour)
	_, err = svc.Cancel(context.Background(), vol.userID, a.ID)
	assert.ErrorIs(t, err, ErrWindowClosed)
	assert.Equal(t, 1, f.reserved(eventID))
}

func TestDecideAcceptKeepsSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	ong := f.ong()
	vol := f.volunteer()
	eventID := f.event(ong, clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	accepted, err := svc.Decide(context.Background(), ong.userID, a.ID, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
	assert.Equal(t, 1, f.reserved(eventID), "accept must not change reserved")
}

func TestDecideRejectReleasesSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	ong := f.ong()
	vol := f.volunteer()
	eventID := f.event(ong, clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	// Reject from ACCEPTED, the later of the two live statuses.
	_, err = svc.Decide(context.Background(), ong.userID, a.ID, StatusAccepted)
	require.NoError(t, err)

	rejected, err := svc.Decide(context.Background(), ong.userID, a.ID, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, 0, f.reserved(eventID), "reject must return the slot")

	// Terminal: no way back.
	_, err = svc.Decide(context.Background(), ong.userID, a.ID, StatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecideRequiresOwnership(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	owner := f.ong()
	other := f.ong()
	vol := f.volunteer()
	eventID := f.event(owner, clk.Now().Add(72*time.Hour), 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), other.userID, a.ID, StatusAccepted)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCheckInFlow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	ong := f.ong()
	vol := f.volunteer()
	start := clk.Now().Add(72 * time.Hour)
	eventID := f.event(ong, start, 120, 5)

	a, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)
	_, err = svc.Decide(context.Background(), ong.userID, a.ID, StatusAccepted)
	require.NoError(t, err)

	// Still SCHEDULED: neither the code nor the check-in exists yet.
	_, err = svc.IssueCheckInCode(context.Background(), ong.userID, eventID)
	assert.ErrorIs(t, err, ErrInvalidPhase)
	_, err = svc.CheckIn(context.Background(), vol.userID, eventID, "000000")
	assert.ErrorIs(t, err, ErrInvalidPhase)

	clk.Set(start.Add(10 * time.Minute))

	_, err = svc.CheckIn(context.Background(), vol.userID, eventID, "000000")
	assert.ErrorIs(t, err, ErrCodeNotIssued)

	code, err := svc.IssueCheckInCode(context.Background(), ong.userID, eventID)
	require.NoError(t, err)
	require.Len(t, code.Code, 6)

	again, err := svc.IssueCheckInCode(context.Background(), ong.userID, eventID)
	require.NoError(t, err)
	assert.Equal(t, code.Code, again.Code, "repeated issue must return the same code")
	assert.Equal(t, code.IssuedAt.UTC(), again.IssuedAt.UTC())

	wrong := "000000"
	if wrong == code.Code {
		wrong = "000001"
	}
	_, err = svc.CheckIn(context.Background(), vol.userID, eventID, wrong)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	checked, err := svc.CheckIn(context.Background(), vol.userID, eventID, code.Code)
	require.NoError(t, err)
	assert.True(t, checked.CheckedIn)
	require.NotNil(t, checked.CheckInAt)

	_, err = svc.CheckIn(context.Background(), vol.userID, eventID, code.Code)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestCheckInRequiresAcceptedApplication(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := fixture{t, db}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(db, clk)

	ong := f.ong()
	vol := f.volunteer()
	start := clk.Now().Add(72 * time.Hour)
	eventID := f.event(ong, start, 120, 5)

	_, err := svc.Apply(context.Background(), vol.userID, eventID)
	require.NoError(t, err)

	clk.Set(start.Add(10 * time.Minute))
	code, err := svc.IssueCheckInCode(context.Background(), ong.userID, eventID)
	require.NoError(t, err)

	// Still PENDING: the code alone is not enough.
	_, err = svc.CheckIn(context.Background(), vol.userID, eventID, code.Code)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
