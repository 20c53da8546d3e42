// internal/handlers/auth.go
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/auth"
)

type contextKey string

const userIDKey contextKey = "userID"

// AuthCookie carries the access token for browser clients.
const AuthCookie = "auth_token"

// RequireAuth rejects requests without a valid access token and stores the
// caller's id in the request context.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing access token"})
			return
		}
		userID, err := s.tokens.Authenticate(token, auth.KindAccess)
		if err != nil {
			s.logger.WithError(err).Debug("rejected access token")
			s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "invalid access token"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the caller set by RequireAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func callerID(r *http.Request) uuid.UUID {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// tokenFromRequest looks at the Authorization header, then the auth cookie, then
// the token query parameter browsers use for WebSocket upgrades.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(AuthCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
