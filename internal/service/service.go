package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/Dan9191/user-service/internal/auth"
	"github.com/Dan9191/user-service/internal/config"
	"github.com/Dan9191/user-service/internal/models"
	"github.com/Dan9191/user-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// Gateway is the persistence surface the service needs. Satisfied by
// *repository.Repository; tests substitute a fake.
type Gateway interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error)
	UpdateUser(ctx context.Context, id int64, username, email string) error
	UpdateSession(ctx context.Context, id int64, token string, expiresAt time.Time) error
	UpdateLocation(ctx context.Context, id int64, location string) error
	DeleteUser(ctx context.Context, id int64) error
	SearchUsers(ctx context.Context, term string) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	InsertHistory(ctx context.Context, method, url string, createdAt time.Time) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Mailer sends account notifications. May be nil when SMTP is not configured.
type Mailer interface {
	SendWelcome(to, username string) error
}

// Service handles business logic
type Service struct {
	repo   Gateway
	log    *logrus.Logger
	config *config.Config
	mailer Mailer
}

// NewService initializes a new service
func NewService(repo Gateway, log *logrus.Logger, cfg *config.Config, mailer Mailer) *Service {
	return &Service{repo: repo, log: log, config: cfg, mailer: mailer}
}

// Register creates a new user with a hashed password and an initial session.
// The confirm password is transient input only and is never persisted.
func (s *Service) Register(ctx context.Context, username, email, password, confirmPassword string) (*models.User, error) {
	if password != confirmPassword {
		return nil, ErrPasswordMismatch
	}
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}

	// Fast-path uniqueness checks, email first. The unique constraints on
	// the users table remain the authoritative guard against the
	// check-then-insert race.
	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	taken, err = s.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:        username,
		Email:           email,
		PasswordHash:    hashedPassword,
		DefaultLocation: "Unknown",
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.issueSession(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	s.logHistory(ctx, "POST", "/api/users")
	s.sendWelcome(user)

	return sanitize(user), nil
}

// Login authenticates a user and issues a fresh session, overwriting any
// prior one.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.issueSession(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User logged in: %s", user.Email)
	s.logHistory(ctx, "POST", "/api/users/login")

	return sanitize(user), nil
}

// GetByID returns a single user without credential or session material
func (s *Service) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeListed(user), nil
}

// Update changes username and email in place
func (s *Service) Update(ctx context.Context, id int64, username, email string) error {
	if _, err := s.repo.FindUserByID(ctx, id); err != nil {
		return err
	}
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	taken, err := s.repo.EmailTakenByOther(ctx, email, id)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	if err := s.repo.UpdateUser(ctx, id, username, email); err != nil {
		return err
	}

	s.log.Infof("User %d updated", id)
	s.logHistory(ctx, "PUT", fmt.Sprintf("/api/users/%d", id))
	return nil
}

// Delete hard-deletes a user
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Infof("User %d deleted", id)
	s.logHistory(ctx, "DELETE", fmt.Sprintf("/api/users/%d", id))
	return nil
}

// Search returns users whose username or email contains the term. An empty
// result is not an error.
func (s *Service) Search(ctx context.Context, term string) ([]models.User, error) {
	users, err := s.repo.SearchUsers(ctx, term)
	if err != nil {
		return nil, err
	}
	return sanitizeAll(users), nil
}

// ListAll returns every user
func (s *Service) ListAll(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return sanitizeAll(users), nil
}

// ValidateSessionToken checks a supplied token against the user's stored
// session. An invalid or expired session is not an error; only
// infrastructure failures are.
func (s *Service) ValidateSessionToken(ctx context.Context, userID int64, token string) (*models.User, bool, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !utils.SessionValid(user.SessionToken, user.SessionExpiresAt, token, time.Now()) {
		return nil, false, nil
	}
	return sanitizeListed(user), true, nil
}

// UpdateLocation sets the user's default location and returns the updated user
func (s *Service) UpdateLocation(ctx context.Context, userID int64, location string) (*models.User, error) {
	if err := s.repo.UpdateLocation(ctx, userID, location); err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.Infof("User %d location set to %s", userID, location)
	s.logHistory(ctx, "PUT", "/api/users/update-location")
	return sanitizeListed(user), nil
}

// PurgeExpiredSessions clears session fields on expired rows. Invoked on a
// schedule; session validity never depends on it.
func (s *Service) PurgeExpiredSessions(ctx context.Context) error {
	purged, err := s.repo.PurgeExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	if purged > 0 {
		s.log.Infof("Purged %d expired sessions", purged)
	}
	return nil
}

// issueSession mints a signed token for the user and persists it together
// with its expiry and the login time.
func (s *Service) issueSession(ctx context.Context, user *models.User) error {
	token, expiresAt, err := auth.GenerateToken(user.ID, []byte(s.config.JWTSecret), s.config.SessionTimeout)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSession(ctx, user.ID, token, expiresAt); err != nil {
		return err
	}
	user.SessionToken = token
	user.SessionExpiresAt = expiresAt
	user.LastLoginTime = time.Now()
	return nil
}

// logHistory appends an audit record. Strictly fire-and-forget: a logging
// failure never affects the outcome of the operation that triggered it.
func (s *Service) logHistory(ctx context.Context, method, url string) {
	if err := s.repo.InsertHistory(ctx, method, url, time.Now()); err != nil {
		s.log.Errorf("Failed to log history for %s %s: %v", method, url, err)
	}
}

// sendWelcome is best-effort; failures are logged and swallowed
func (s *Service) sendWelcome(user *models.User) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendWelcome(user.Email, user.Username); err != nil {
		s.log.Errorf("Failed to send welcome email to %s: %v", user.Email, err)
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// sanitize strips credential material from a response projection
func sanitize(user *models.User) *models.User {
	user.PasswordHash = ""
	return user
}

// sanitizeListed additionally withholds the session token, which only the
// register and login responses may carry.
func sanitizeListed(user *models.User) *models.User {
	sanitize(user)
	user.SessionToken = ""
	return user
}

func sanitizeAll(users []models.User) []models.User {
	for i := range users {
		sanitizeListed(&users[i])
	}
	return users
}
