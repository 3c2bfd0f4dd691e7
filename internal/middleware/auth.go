package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayush/tasktracker/backend/internal/httpx"
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type userIDKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user id set by RequireAuth.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// RequireAuth is middleware that validates the bearer token and
// injects the user id into the request context.
func RequireAuth(tokens TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteMessage(w, http.StatusUnauthorized, "No token provided.")
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", "error", err, "path", r.URL.Path)
				httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}
			if _, err := uuid.Parse(userID); err != nil {
				httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
