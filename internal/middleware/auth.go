// internal/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	callerIDKey ctxKey = iota
	callerRoleKey
)

// VerifyFunc validates a bearer token and returns the caller's id and role.
type VerifyFunc func(token string) (uuid.UUID, string, error)

// Auth rejects requests without a valid bearer token and stores the resolved
// caller in the request context.
func Auth(verify VerifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, role, ok := callerFromHeader(r, verify)
			if !ok {
				http.Error(w, "invalid or missing token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), id, role)))
		})
	}
}

// OptionalAuth resolves the caller when a valid token is present but lets
// anonymous requests through. Used by public listings that personalize their
// output for logged-in volunteers.
func OptionalAuth(verify VerifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, role, ok := callerFromHeader(r, verify); ok {
				r = r.WithContext(withCaller(r.Context(), id, role))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows only callers holding one of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := CallerRole(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func callerFromHeader(r *http.Request, verify VerifyFunc) (uuid.UUID, string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return uuid.Nil, "", false
	}
	id, role, err := verify(token)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, role, true
}

func withCaller(ctx context.Context, id uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, callerIDKey, id)
	return context.WithValue(ctx, callerRoleKey, role)
}

// CallerID returns the authenticated user id, or uuid.Nil for anonymous requests.
func CallerID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(callerIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// CallerRole returns the authenticated role, or "" for anonymous requests.
func CallerRole(ctx context.Context) string {
	if role, ok := ctx.Value(callerRoleKey).(string); ok {
		return role
	}
	return ""
}
