package models

import "time"

// User represents a user account in the system
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"` // Not serialized
	SessionToken      string    `json:"session_token,omitempty"`
	SessionExpiresAt  time.Time `json:"session_expires_at"`
	FirstRegisterTime time.Time `json:"first_register_time"`
	LastLoginTime     time.Time `json:"last_login_time"`
	MobileNumber      string    `json:"mobile_number,omitempty"`
	DefaultLocation   string    `json:"default_location"`
}
