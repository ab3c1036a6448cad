package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mentorlink/realtime/internal/crypto"
	"github.com/mentorlink/realtime/internal/metrics"
	"github.com/mentorlink/realtime/internal/models"
	"github.com/mentorlink/realtime/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AccessCookie is the cookie carrying the opaque access token.
const AccessCookie = "access_token"

// AuthMiddleware resolves the access token cookie into a user.
type AuthMiddleware struct {
	data     store.DataStore
	sessions store.SessionCache
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(data store.DataStore, sessions store.SessionCache) *AuthMiddleware {
	return &AuthMiddleware{data: data, sessions: sessions}
}

// RequireAuth verifies the session cookie and loads the user into context.
// Expired or unknown tokens answer 401; blocked accounts answer 403 with a
// body the client interceptor recognizes.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessCookie)
		if err != nil || cookie.Value == "" {
			metrics.AuthFailures.WithLabelValues("invalid").Inc()
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		if err := crypto.ValidateToken(cookie.Value); err != nil {
			metrics.AuthFailures.WithLabelValues("invalid").Inc()
			jsonError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		userID, ok, err := m.sessions.GetSession(r.Context(), crypto.HashToken(cookie.Value))
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if !ok {
			metrics.AuthFailures.WithLabelValues("expired").Inc()
			jsonError(w, http.StatusUnauthorized, "session expired")
			return
		}

		user, err := m.data.GetUserByID(r.Context(), userID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "user lookup failed")
			return
		}
		if user == nil {
			metrics.AuthFailures.WithLabelValues("invalid").Inc()
			jsonError(w, http.StatusUnauthorized, "user not found")
			return
		}
		if user.Blocked {
			metrics.AuthFailures.WithLabelValues("blocked").Inc()
			jsonError(w, http.StatusForbidden, "account blocked")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
