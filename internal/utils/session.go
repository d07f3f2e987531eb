package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionTokenBytes is the entropy of a generated session token in bytes.
const SessionTokenBytes = 16

// GenerateSessionToken generates a random opaque session token
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SessionExpiry computes the absolute expiry for a session issued at now
func SessionExpiry(now time.Time, timeout time.Duration) time.Time {
	return now.Add(timeout)
}

// SessionValid reports whether the supplied token matches the stored one
// and the session has not expired. The token comparison is constant-time.
func SessionValid(storedToken string, storedExpiry time.Time, suppliedToken string, now time.Time) bool {
	if storedToken == "" || suppliedToken == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(storedToken), []byte(suppliedToken)) != 1 {
		return false
	}
	return now.Before(storedExpiry)
}
