package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/user-service/internal/models"
	"github.com/lib/pq"
)

// Sentinel errors surfaced to the service layer. Unique-constraint
// violations reported by Postgres are the authoritative source of the
// "taken" errors; the service-level pre-checks are only a fast path.
var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already taken")
	ErrUsernameTaken = errors.New("username already taken")
)

const userColumns = `id, username, email, password, session_token, session_expires_at,
		first_register_time, last_login_time, mobile_number, default_location`

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password, first_register_time, last_login_time, default_location)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, $4)
		RETURNING id, first_register_time, last_login_time`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.DefaultLocation).
		Scan(&user.ID, &user.FirstRegisterTime, &user.LastLoginTime)
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return taken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindUserByID retrieves a user by ID
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return user, nil
}

// EmailExists reports whether any user holds the given email
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email)
}

// UsernameExists reports whether any user holds the given username
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM users WHERE username = $1`, username)
}

// EmailTakenByOther reports whether a different user already holds the email
func (r *Repository) EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM users WHERE email = $1 AND id <> $2`, email, id)
}

func (r *Repository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}

// UpdateUser updates username and email in place
func (r *Repository) UpdateUser(ctx context.Context, id int64, username, email string) error {
	query := `UPDATE users SET username = $1, email = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, username, email, id)
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return taken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffected(res)
}

// UpdateSession persists a freshly issued session token, its expiry, and the
// login time, overwriting any prior session.
func (r *Repository) UpdateSession(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	query := `
		UPDATE users SET session_token = $1, session_expires_at = $2, last_login_time = CURRENT_TIMESTAMP
		WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, token, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return checkAffected(res)
}

// UpdateLocation sets the user's default location
func (r *Repository) UpdateLocation(ctx context.Context, id int64, location string) error {
	query := `UPDATE users SET default_location = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, location, id)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return checkAffected(res)
}

// DeleteUser hard-deletes a user row
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return checkAffected(res)
}

// SearchUsers returns users whose username or email contains the term.
// Matching is a plain LIKE, so case sensitivity follows the database
// collation.
func (r *Repository) SearchUsers(ctx context.Context, term string) ([]models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE username LIKE '%' || $1 || '%' OR email LIKE '%' || $1 || '%'
		ORDER BY id`
	return r.queryUsers(ctx, query, term)
}

// ListUsers returns every user
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	return r.queryUsers(ctx, query)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// InsertHistory appends an audit record
func (r *Repository) InsertHistory(ctx context.Context, method, url string, createdAt time.Time) error {
	query := `INSERT INTO history (method, url, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, method, url, createdAt); err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// PurgeExpiredSessions clears session fields on rows whose expiry has passed
func (r *Repository) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users SET session_token = NULL, session_expires_at = NULL
		WHERE session_expires_at IS NOT NULL AND session_expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var (
		sessionToken  sql.NullString
		sessionExpiry sql.NullTime
		mobileNumber  sql.NullString
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&sessionToken, &sessionExpiry, &user.FirstRegisterTime, &user.LastLoginTime,
		&mobileNumber, &user.DefaultLocation)
	if err != nil {
		return nil, err
	}
	user.SessionToken = sessionToken.String
	user.SessionExpiresAt = sessionExpiry.Time
	user.MobileNumber = mobileNumber.String
	return user, nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch pqErr.Constraint {
	case "users_username_key":
		return ErrUsernameTaken
	default:
		return ErrEmailTaken
	}
}
