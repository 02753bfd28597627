package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"karte-backend/internal/services"
)

type contextKey string

const sessionKey contextKey = "session"

var errMissingToken = errors.New("token required")

// SessionValidator validates bearer tokens. *services.AuthService
// implements it.
type SessionValidator interface {
	ValidateSession(token string) (*services.Session, error)
}

// RequireRole creates a middleware that only lets through bearer tokens of
// the given role
func RequireRole(auth SessionValidator, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			session, err := auth.ValidateSession(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if session.Role != role {
				respondError(w, "Insufficient role", http.StatusForbidden)
				return
			}

			ctx := WithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSession stores the session in the context
func WithSession(ctx context.Context, session *services.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession extracts the session from context
func GetSession(ctx context.Context) *services.Session {
	session, ok := ctx.Value(sessionKey).(*services.Session)
	if !ok {
		return nil
	}
	return session
}

// GetSubject returns the admin or customer id of the session
func GetSubject(ctx context.Context) string {
	if session := GetSession(ctx); session != nil {
		return session.Subject
	}
	return ""
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ValidateWebSocketToken validates the session token passed as a WebSocket
// query parameter
func ValidateWebSocketToken(token string, auth SessionValidator) (*services.Session, error) {
	if token == "" {
		return nil, errMissingToken
	}
	return auth.ValidateSession(token)
}
