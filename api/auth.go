package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/storage"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext returns the authenticated user, or "" outside
// authenticated routes.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// Authenticate resolves the bearer token of each request to a user id.
// Requests without a known token are rejected with 401.
func Authenticate(users storage.UserDirectory, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				metrics.Rejected("authentication")
				Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, err := users.LookupToken(r.Context(), token)
			if errors.Is(err, storage.ErrNotFound) {
				metrics.Rejected("authentication")
				Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if err != nil {
				Error(w, http.StatusInternalServerError, "failed to verify token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
