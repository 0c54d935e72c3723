// Package middleware holds censusd's own HTTP middleware: CORS,
// security headers, request IDs, API-key auth, rate limiting and
// request timeouts. router.New wires them together with chi's
// recoverer and the router's own request logging and body limit.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"
)

type contextKey string

// APIKeyContextKey stores the validated API key in request context.
const APIKeyContextKey contextKey = "api_key"

// AuthMiddleware validates the shared-secret X-API-Key header against
// a single configured key; there is no per-tenant key store, this
// is a single-operator service.
type AuthMiddleware struct {
	logger    zerolog.Logger
	headerKey string
	expected  string
}

// NewAuthMiddleware creates authentication middleware checking
// headerKey against expected using a constant-time comparison.
func NewAuthMiddleware(logger zerolog.Logger, headerKey, expected string) *AuthMiddleware {
	if headerKey == "" {
		headerKey = "X-API-Key"
	}
	return &AuthMiddleware{logger: logger, headerKey: headerKey, expected: expected}
}

// Handler returns the middleware handler function. If no expected key
// was configured, auth is disabled (useful for local development).
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	if am.expected == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(am.headerKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(am.expected)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"auth_error","message":"missing or invalid API key"}`))
			return
		}
		ctx := context.WithValue(r.Context(), APIKeyContextKey, got)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAPIKey extracts the API key from the request context.
func GetAPIKey(ctx context.Context) string {
	if v, ok := ctx.Value(APIKeyContextKey).(string); ok {
		return v
	}
	return ""
}
