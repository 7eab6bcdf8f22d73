package api

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const ownerIDKey ctxKey = "ownerID"

const demoOwner = "demo-owner"

// ownerMiddleware resolves the caller. With a JWT secret configured a valid
// bearer token is required; otherwise X-Owner-Id is trusted.
func (s *Server) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := demoOwner
		if s.JWTSecret != "" {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			sub, err := parseToken(s.JWTSecret, strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			owner = sub
		} else if h := strings.TrimSpace(r.Header.Get("X-Owner-Id")); h != "" {
			owner = h
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerID(r *http.Request) string {
	if v, ok := r.Context().Value(ownerIDKey).(string); ok {
		return v
	}
	return demoOwner
}
