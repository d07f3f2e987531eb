package service

import (
	"errors"

	"github.com/Dan9191/user-service/internal/repository"
)

// Validation and authentication errors returned to the handler layer.
// Persistence-level sentinels are re-exported so callers depend on one
// package.
var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNotFound      = repository.ErrNotFound
	ErrEmailTaken    = repository.ErrEmailTaken
	ErrUsernameTaken = repository.ErrUsernameTaken
)
