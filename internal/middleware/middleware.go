package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Dan9191/user-service/internal/auth"
	"github.com/Dan9191/user-service/internal/config"
	"github.com/Dan9191/user-service/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware gates protected routes. A request proceeds only when the
// supplied token carries a valid signature AND matches the user's stored,
// unexpired session. On success the user ID is attached to the request
// context under "userID".
func AuthMiddleware(cfg *config.Config, svc *service.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				unauthorized(w)
				return
			}

			userID, err := auth.ParseUserID(token, []byte(cfg.JWTSecret))
			if err != nil {
				unauthorized(w)
				return
			}

			_, valid, err := svc.ValidateSessionToken(r.Context(), userID, token)
			if err != nil || !valid {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), "userID", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs every inbound request with a generated request id.
// Disabled unless the LOG_REPORT flag is set.
func RequestLogger(log *logrus.Logger, cfg *config.Config) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.LogRequests {
				log.WithFields(logrus.Fields{
					"request_id": uuid.NewString(),
					"method":     r.Method,
					"url":        r.URL.Path,
				}).Info("Request received")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}
