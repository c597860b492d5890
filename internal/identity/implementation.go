// internal/identity/implementation.go
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	db            *sql.DB
	registerLimit *rate.Limiter
	loginLimit    *rate.Limiter
}

// NewService creates a new identity service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:            db,
		registerLimit: rate.NewLimiter(rate.Every(time.Minute), 10),
		loginLimit:    rate.NewLimiter(rate.Every(time.Second), 20),
	}
}

// RegisterVolunteer creates a user with role VOLUNTEER and its profile in one transaction.
func (s *service) RegisterVolunteer(ctx context.Context, in RegisterVolunteerInput) (*Account, error) {
	if !s.registerLimit.Allow() {
		return nil, ErrRateLimited
	}
	if err := validateCredentials(in.Email, in.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.CPF) == "" {
		return nil, fmt.Errorf("full_name and cpf are required")
	}

	passwordHash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:     uuid.New(),
		Email:  strings.ToLower(strings.TrimSpace(in.Email)),
		Role:   RoleVolunteer,
		Status: StatusActive,
	}
	profile := &VolunteerProfile{
		ID:           uuid.New(),
		UserID:       user.ID,
		FullName:     in.FullName,
		CPF:          in.CPF,
		BirthDate:    in.BirthDate,
		Phone:        in.Phone,
		CEP:          in.CEP,
		Street:       in.Street,
		Number:       in.Number,
		Complement:   in.Complement,
		Neighborhood: in.Neighborhood,
		City:         in.City,
		State:        in.State,
		Experiences:  in.Experiences,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user, passwordHash, salt); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO volunteer_profiles
			(id, user_id, full_name, cpf, birth_date, phone, cep, street, number, complement, neighborhood, city, state, experiences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, profile.ID, profile.UserID, profile.FullName, profile.CPF, profile.BirthDate, profile.Phone,
		profile.CEP, profile.Street, profile.Number, profile.Complement, profile.Neighborhood,
		profile.City, profile.State, profile.Experiences)
	if err != nil {
		return nil, translateUniqueViolation(err, "insert volunteer profile")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return &Account{User: *user, Volunteer: profile}, nil
}

// RegisterOng creates a user with role ONG, status PENDING, and its profile.
// The account stays PENDING until an admin activates it.
func (s *service) RegisterOng(ctx context.Context, in RegisterOngInput) (*Account, error) {
	if !s.registerLimit.Allow() {
		return nil, ErrRateLimited
	}
	if err := validateCredentials(in.Email, in.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.CNPJ) == "" {
		return nil, fmt.Errorf("name and cnpj are required")
	}

	passwordHash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:     uuid.New(),
		Email:  strings.ToLower(strings.TrimSpace(in.Email)),
		Role:   RoleOng,
		Status: StatusPending,
	}
	profile := &OngProfile{
		ID:               uuid.New(),
		UserID:           user.ID,
		Name:             in.Name,
		CNPJ:             in.CNPJ,
		Description:      in.Description,
		CEP:              in.CEP,
		Street:           in.Street,
		Number:           in.Number,
		Complement:       in.Complement,
		Neighborhood:     in.Neighborhood,
		City:             in.City,
		State:            in.State,
		ResponsibleName:  in.ResponsibleName,
		ResponsibleCPF:   in.ResponsibleCPF,
		ResponsibleEmail: in.ResponsibleEmail,
		DocumentURL:      in.DocumentURL,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user, passwordHash, salt); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ong_profiles
			(id, user_id, name, cnpj, description, cep, street, number, complement, neighborhood, city, state,
			 responsible_name, responsible_cpf, responsible_email, document_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, profile.ID, profile.UserID, profile.Name, profile.CNPJ, profile.Description,
		profile.CEP, profile.Street, profile.Number, profile.Complement, profile.Neighborhood,
		profile.City, profile.State, profile.ResponsibleName, profile.ResponsibleCPF,
		profile.ResponsibleEmail, profile.DocumentURL)
	if err != nil {
		return nil, translateUniqueViolation(err, "insert ong profile")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return &Account{User: *user, Ong: profile}, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, user *User, passwordHash, salt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, password_salt, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, passwordHash, salt, user.Role, user.Status)
	if err != nil {
		return translateUniqueViolation(err, "insert user")
	}
	return nil
}

// Authenticate verifies the credentials and the account status.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if !s.loginLimit.Allow() {
		return nil, ErrRateLimited
	}

	email = strings.ToLower(strings.TrimSpace(email))

	var (
		user         User
		passwordHash string
		salt         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, password_salt, role, status, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &passwordHash, &salt, &user.Role, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := verifyPassword(password, salt, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	switch user.Status {
	case StatusBlocked:
		return nil, ErrAccountBlocked
	case StatusPending:
		return nil, ErrAccountPending
	}

	return &user, nil
}

// GetAccount loads a user together with its role profile.
func (s *service) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	account := &Account{User: *user}
	switch user.Role {
	case RoleVolunteer:
		profile, err := s.volunteerByUser(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotAVolunteer) {
			return nil, err
		}
		account.Volunteer = profile
	case RoleOng:
		profile, err := s.ongByUser(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotAnOng) {
			return nil, err
		}
		account.Ong = profile
	}
	return account, nil
}

func (s *service) getUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.Role, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

const volunteerColumns = `id, user_id, full_name, cpf, birth_date, phone, cep, street, number, complement, neighborhood, city, state, experiences`

func scanVolunteer(row *sql.Row) (*VolunteerProfile, error) {
	p := &VolunteerProfile{}
	var birth sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.CPF, &birth, &p.Phone, &p.CEP, &p.Street,
		&p.Number, &p.Complement, &p.Neighborhood, &p.City, &p.State, &p.Experiences)
	if err != nil {
		return nil, err
	}
	if birth.Valid {
		p.BirthDate = &birth.Time
	}
	return p, nil
}

func (s *service) volunteerByUser(ctx context.Context, userID uuid.UUID) (*VolunteerProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+volunteerColumns+` FROM volunteer_profiles WHERE user_id = $1`, userID)
	p, err := scanVolunteer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotAVolunteer
		}
		return nil, fmt.Errorf("failed to load volunteer profile: %w", err)
	}
	return p, nil
}

const ongColumns = `id, user_id, name, cnpj, description, cep, street, number, complement, neighborhood, city, state,
	responsible_name, responsible_cpf, responsible_email, document_url, average_rating, total_reviews`

func scanOng(row *sql.Row) (*OngProfile, error) {
	p := &OngProfile{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.CNPJ, &p.Description, &p.CEP, &p.Street, &p.Number,
		&p.Complement, &p.Neighborhood, &p.City, &p.State, &p.ResponsibleName, &p.ResponsibleCPF,
		&p.ResponsibleEmail, &p.DocumentURL, &p.AverageRating, &p.TotalReviews)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) ongByUser(ctx context.Context, userID uuid.UUID) (*OngProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ongColumns+` FROM ong_profiles WHERE user_id = $1`, userID)
	p, err := scanOng(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotAnOng
		}
		return nil, fmt.Errorf("failed to load ong profile: %w", err)
	}
	return p, nil
}

// UpdateVolunteerProfile applies the non-nil fields of the input.
func (s *service) UpdateVolunteerProfile(ctx context.Context, userID uuid.UUID, in UpdateVolunteerInput) (*VolunteerProfile, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE volunteer_profiles SET
			full_name    = COALESCE($2, full_name),
			phone        = COALESCE($3, phone),
			experiences  = COALESCE($4, experiences),
			cep          = COALESCE($5, cep),
			street       = COALESCE($6, street),
			number       = COALESCE($7, number),
			complement   = COALESCE($8, complement),
			neighborhood = COALESCE($9, neighborhood),
			city         = COALESCE($10, city),
			state        = COALESCE($11, state)
		WHERE user_id = $1
	`, userID, in.FullName, in.Phone, in.Experiences, in.CEP, in.Street, in.Number,
		in.Complement, in.Neighborhood, in.City, in.State)
	if err != nil {
		return nil, fmt.Errorf("failed to update volunteer profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotAVolunteer
	}
	return s.volunteerByUser(ctx, userID)
}

// UpdateOngProfile applies the non-nil fields of the input.
func (s *service) UpdateOngProfile(ctx context.Context, userID uuid.UUID, in UpdateOngInput) (*OngProfile, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ong_profiles SET
			name             = COALESCE($2, name),
			description      = COALESCE($3, description),
			cep              = COALESCE($4, cep),
			street           = COALESCE($5, street),
			number           = COALESCE($6, number),
			complement       = COALESCE($7, complement),
			neighborhood     = COALESCE($8, neighborhood),
			city             = COALESCE($9, city),
			state            = COALESCE($10, state),
			responsible_name = COALESCE($11, responsible_name),
			responsible_cpf  = COALESCE($12, responsible_cpf),
			document_url     = COALESCE($13, document_url)
		WHERE user_id = $1
	`, userID, in.Name, in.Description, in.CEP, in.Street, in.Number, in.Complement,
		in.Neighborhood, in.City, in.State, in.ResponsibleName, in.ResponsibleCPF, in.DocumentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to update ong profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotAnOng
	}
	return s.ongByUser(ctx, userID)
}

// VolunteerProfileID resolves a user to its volunteer profile id.
func (s *service) VolunteerProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM volunteer_profiles WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrNotAVolunteer
		}
		return uuid.Nil, fmt.Errorf("failed to resolve volunteer profile: %w", err)
	}
	return id, nil
}

// OngProfileID resolves a user to its ONG profile id.
func (s *service) OngProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM ong_profiles WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrNotAnOng
		}
		return uuid.Nil, fmt.Errorf("failed to resolve ong profile: %w", err)
	}
	return id, nil
}

// ListUsers returns accounts, optionally filtered by role and status.
func (s *service) ListUsers(ctx context.Context, role, status string) ([]Account, error) {
	query := `
		SELECT u.id, u.email, u.role, u.status, u.created_at, u.updated_at,
		       vp.full_name, op.name
		FROM users u
		LEFT JOIN volunteer_profiles vp ON vp.user_id = u.id
		LEFT JOIN ong_profiles op ON op.user_id = u.id
		WHERE ($1 = '' OR u.role = $1)
		  AND ($2 = '' OR u.status = $2)
		ORDER BY u.created_at DESC
	`
	return s.listAccounts(ctx, query, role, status)
}

// ListOngs returns all ONG accounts, pending first so moderators see them on top.
func (s *service) ListOngs(ctx context.Context) ([]Account, error) {
	query := `
		SELECT u.id, u.email, u.role, u.status, u.created_at, u.updated_at,
		       NULL, op.name
		FROM users u
		JOIN ong_profiles op ON op.user_id = u.id
		ORDER BY u.status != 'PENDING', u.created_at DESC
	`
	return s.listAccounts(ctx, query)
}

// ListVolunteers returns all volunteer accounts.
func (s *service) ListVolunteers(ctx context.Context) ([]Account, error) {
	query := `
		SELECT u.id, u.email, u.role, u.status, u.created_at, u.updated_at,
		       vp.full_name, NULL
		FROM users u
		JOIN volunteer_profiles vp ON vp.user_id = u.id
		ORDER BY u.created_at DESC
	`
	return s.listAccounts(ctx, query)
}

func (s *service) listAccounts(ctx context.Context, query string, args ...interface{}) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			acc           Account
			volunteerName sql.NullString
			ongName       sql.NullString
		)
		err := rows.Scan(&acc.User.ID, &acc.User.Email, &acc.User.Role, &acc.User.Status,
			&acc.User.CreatedAt, &acc.User.UpdatedAt, &volunteerName, &ongName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if volunteerName.Valid {
			acc.Volunteer = &VolunteerProfile{UserID: acc.User.ID, FullName: volunteerName.String}
		}
		if ongName.Valid {
			acc.Ong = &OngProfile{UserID: acc.User.ID, Name: ongName.String}
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// UpdateUserStatus moderates an account. Admin accounts cannot be touched.
func (s *service) UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) (*User, error) {
	switch status {
	case StatusActive, StatusPending, StatusBlocked:
	default:
		return nil, fmt.Errorf("invalid status %q", status)
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == RoleAdmin {
		return nil, ErrAdminImmutable
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1
	`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "status": status}).Info("user status updated")
	user.Status = status
	return user, nil
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

// translateUniqueViolation maps postgres unique violations (23505) onto the
// matching domain sentinel so duplicates surface as business-rule rejections.
func translateUniqueViolation(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "users_email_key":
			return ErrEmailTaken
		case "volunteer_profiles_cpf_key":
			return ErrCPFTaken
		case "ong_profiles_cnpj_key":
			return ErrCNPJTaken
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
