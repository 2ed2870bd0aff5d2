package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type ctxKey int

const ownerIDKey ctxKey = iota

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(raw string) (int, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id in the request context.
func RequireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}
			id, err := tokens.ParseToken(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), id)))
		})
	}
}

// WithOwnerID returns ctx carrying the authenticated user id.
func WithOwnerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

// OwnerID returns the authenticated user's id from context.
func OwnerID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ownerIDKey).(int)
	return id, ok && id > 0
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
