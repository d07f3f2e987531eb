package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dan9191/user-service/internal/utils"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token fails signature or claim checks
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the standard registered claims plus the user ID
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// GenerateToken mints a signed session token for the given user. The token
// ID is filled with a random opaque value so two tokens minted in the same
// second for the same user never collide. Returns the token string and its
// absolute expiry.
func GenerateToken(userID int64, secret []byte, validity time.Duration) (string, time.Time, error) {
	jti, err := utils.GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := utils.SessionExpiry(time.Now(), validity)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ParseUserID verifies the token signature and returns the embedded user ID
func ParseUserID(tokenString string, secret []byte) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
