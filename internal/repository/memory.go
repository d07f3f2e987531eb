package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/user-service/internal/models"
)

// MemoryRepository is an in-memory persistence gateway with the same
// semantics as the Postgres-backed Repository, including uniqueness
// enforcement. Used as a test double and for local experimentation.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*models.User
	history []models.HistoryEntry
}

// NewMemoryRepository initializes an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, users: make(map[int64]*models.User)}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
		if u.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	now := time.Now()
	user.ID = r.nextID
	r.nextID++
	user.FirstRegisterTime = now
	user.LastLoginTime = now
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *MemoryRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) EmailTakenByOther(_ context.Context, email string, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.ID != id {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) UpdateUser(_ context.Context, id int64, username, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	for _, other := range r.users {
		if other.ID == id {
			continue
		}
		if other.Email == email {
			return ErrEmailTaken
		}
		if other.Username == username {
			return ErrUsernameTaken
		}
	}
	u.Username = username
	u.Email = email
	return nil
}

func (r *MemoryRepository) UpdateSession(_ context.Context, id int64, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.SessionToken = token
	u.SessionExpiresAt = expiresAt
	u.LastLoginTime = time.Now()
	return nil
}

func (r *MemoryRepository) UpdateLocation(_ context.Context, id int64, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DefaultLocation = location
	return nil
}

func (r *MemoryRepository) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryRepository) SearchUsers(_ context.Context, term string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := []models.User{}
	for id := int64(1); id < r.nextID; id++ {
		u, ok := r.users[id]
		if !ok {
			continue
		}
		if strings.Contains(u.Username, term) || strings.Contains(u.Email, term) {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := []models.User{}
	for id := int64(1); id < r.nextID; id++ {
		if u, ok := r.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (r *MemoryRepository) InsertHistory(_ context.Context, method, url string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, models.HistoryEntry{
		ID:        int64(len(r.history) + 1),
		Method:    method,
		URL:       url,
		CreatedAt: createdAt,
	})
	return nil
}

func (r *MemoryRepository) PurgeExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for _, u := range r.users {
		if u.SessionToken != "" && u.SessionExpiresAt.Before(now) {
			u.SessionToken = ""
			u.SessionExpiresAt = time.Time{}
			purged++
		}
	}
	return purged, nil
}

// History returns a copy of the recorded audit entries
func (r *MemoryRepository) History() []models.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.HistoryEntry{}, r.history...)
}

// UserCount reports the number of stored users
func (r *MemoryRepository) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
