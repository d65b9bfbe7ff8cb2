package rest

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"
)

const (
	// TokenHeader is the header name for the control token.
	TokenHeader = "X-Scenebox-Token"
)

// NewTokenAuth creates a middleware that requires token on every request
// except reads. An empty token disables the check.
func NewTokenAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(TokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
