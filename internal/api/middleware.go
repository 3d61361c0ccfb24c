// Package api implements the Tracelight REST API using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthorHeader names the caller recorded on links created without an
// explicit author.
const AuthorHeader = "X-Tracelight-Author"

type authorKey struct{}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthorMiddleware stores the AuthorHeader value in the request context.
func AuthorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if author := strings.TrimSpace(r.Header.Get(AuthorHeader)); author != "" {
			r = r.WithContext(context.WithValue(r.Context(), authorKey{}, author))
		}
		next.ServeHTTP(w, r)
	})
}

func authorFrom(ctx context.Context) string {
	author, _ := ctx.Value(authorKey{}).(string)
	return author
}
