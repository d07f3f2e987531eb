package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/user-service/internal/config"
	"github.com/Dan9191/user-service/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		SessionTimeout: 600 * time.Second,
	}
}

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return NewService(repo, testLogger(), testConfig(), nil), repo
}

func TestRegister_Success(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash, "response must not carry the password hash")
	assert.NotEmpty(t, user.SessionToken)
	assert.Equal(t, "Unknown", user.DefaultLocation)

	remaining := time.Until(user.SessionExpiresAt)
	assert.Greater(t, remaining, 590*time.Second)
	assert.LessOrEqual(t, remaining, 600*time.Second)

	// The stored row keeps the hash, never the plaintext
	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "pw1", stored.PasswordHash)

	history := repo.History()
	require.Len(t, history, 1)
	assert.Equal(t, "POST", history[0].Method)
	assert.Equal(t, "/api/users", history[0].URL)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "a@x.com", "pw1", "pw2")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Zero(t, repo.UserCount(), "no row may be written on mismatch")
	assert.Empty(t, repo.History())
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc, repo := newTestService(t)

	for _, email := range []string{"", "not-an-email", "a@", "alice at x.com"} {
		_, err := svc.Register(context.Background(), "alice", email, "pw1", "pw1")
		assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
	assert.Zero(t, repo.UserCount())
}

func TestRegister_EmailTaken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	// Same email fails regardless of username
	_, err = svc.Register(ctx, "someone-else", "a@x.com", "pw2", "pw2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_UsernameTaken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@x.com", "pw2", "pw2")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	logged, err := svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, logged.ID)
	assert.NotEmpty(t, logged.SessionToken)
	assert.NotEqual(t, registered.SessionToken, logged.SessionToken, "login must overwrite the prior session")
	assert.Empty(t, logged.PasswordHash)

	// The fresh token is the one persisted
	_, valid, err := svc.ValidateSessionToken(ctx, logged.ID, logged.SessionToken)
	require.NoError(t, err)
	assert.True(t, valid)
	_, valid, err = svc.ValidateSessionToken(ctx, logged.ID, registered.SessionToken)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "ghost@x.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetByID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.PasswordHash)
	assert.Empty(t, got.SessionToken, "lookups must not expose the session token")

	_, err = svc.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	a, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", "b@x.com", "pw2", "pw2")
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, a.ID, "alice2", "a2@x.com"))
	got, err := repo.FindUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)
	assert.Equal(t, "a2@x.com", got.Email)

	// Another user already holds that email
	assert.ErrorIs(t, svc.Update(ctx, a.ID, "alice2", "b@x.com"), ErrEmailTaken)
	// Updating a user to its own email is fine
	require.NoError(t, svc.Update(ctx, a.ID, "alice2", "a2@x.com"))

	assert.ErrorIs(t, svc.Update(ctx, 999, "ghost", "g@x.com"), ErrNotFound)
	assert.ErrorIs(t, svc.Update(ctx, a.ID, "alice2", "bad email"), ErrInvalidEmail)
}

func TestDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID))
	assert.Zero(t, repo.UserCount())

	assert.ErrorIs(t, svc.Delete(ctx, user.ID), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 999), ErrNotFound)
}

func TestSearch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@x.com", "pw1", "pw1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", "bob@y.com", "pw2", "pw2")
	require.NoError(t, err)

	users, err := svc.Search(ctx, "ali")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
	assert.Empty(t, users[0].PasswordHash)
	assert.Empty(t, users[0].SessionToken)

	// Matching the email also counts
	users, err = svc.Search(ctx, "y.com")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	// No match is an empty list, not an error
	users, err = svc.Search(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
}

func TestListAll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", "b@x.com", "pw2", "pw2")
	require.NoError(t, err)

	users, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
		assert.Empty(t, u.SessionToken)
	}
}

func TestValidateSessionToken(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	got, valid, err := svc.ValidateSessionToken(ctx, user.ID, user.SessionToken)
	require.NoError(t, err)
	assert.True(t, valid)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	// Wrong token
	_, valid, err = svc.ValidateSessionToken(ctx, user.ID, "bogus")
	require.NoError(t, err)
	assert.False(t, valid)

	// Expired session: simulate the clock moving past the expiry
	require.NoError(t, repo.UpdateSession(ctx, user.ID, user.SessionToken, time.Now().Add(-time.Second)))
	_, valid, err = svc.ValidateSessionToken(ctx, user.ID, user.SessionToken)
	require.NoError(t, err)
	assert.False(t, valid)

	// Unknown user is invalid, not an error
	_, valid, err = svc.ValidateSessionToken(ctx, 999, "tok")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestUpdateLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)

	updated, err := svc.UpdateLocation(ctx, user.ID, "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", updated.DefaultLocation)

	_, err = svc.UpdateLocation(ctx, 999, "Berlin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSession(ctx, user.ID, user.SessionToken, time.Now().Add(-time.Minute)))

	require.NoError(t, svc.PurgeExpiredSessions(ctx))

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.SessionToken)
}

// historyFailGateway makes every audit insert fail
type historyFailGateway struct {
	Gateway
}

func (g historyFailGateway) InsertHistory(context.Context, string, string, time.Time) error {
	return errors.New("history table unavailable")
}

func TestHistoryFailureDoesNotPropagate(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(historyFailGateway{repo}, testLogger(), testConfig(), nil)

	user, err := svc.Register(context.Background(), "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err, "a failed history insert must not overturn the registration")
	require.NotNil(t, user)

	require.NoError(t, svc.Delete(context.Background(), user.ID))
}

// failingMailer always errors
type failingMailer struct{}

func (failingMailer) SendWelcome(string, string) error { return errors.New("smtp down") }

func TestWelcomeMailFailureDoesNotPropagate(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, testLogger(), testConfig(), failingMailer{})

	_, err := svc.Register(context.Background(), "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)
}

// recordingMailer captures sends
type recordingMailer struct {
	to       []string
	username []string
}

func (m *recordingMailer) SendWelcome(to, username string) error {
	m.to = append(m.to, to)
	m.username = append(m.username, username)
	return nil
}

func TestWelcomeMailSentOnRegistration(t *testing.T) {
	repo := repository.NewMemoryRepository()
	mailer := &recordingMailer{}
	svc := NewService(repo, testLogger(), testConfig(), mailer)

	_, err := svc.Register(context.Background(), "alice", "a@x.com", "pw1", "pw1")
	require.NoError(t, err)
	require.Len(t, mailer.to, 1)
	assert.Equal(t, "a@x.com", mailer.to[0])
	assert.Equal(t, "alice", mailer.username[0])
}
