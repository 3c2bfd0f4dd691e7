package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/ayush/tasktracker/backend/internal/httpx"
)

// Limiter decides whether another request under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects requests over the limiter's budget with 429.
// The key is the request path plus the client IP. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Path + "|" + clientIP(r)

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				httpx.WriteMessage(w, http.StatusTooManyRequests, "Too many requests.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. Proxy headers count only when
// chi's RealIP is mounted ahead of this middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
