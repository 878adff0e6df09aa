// Package middleware guards the proxy route groups.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth validates the nexus key on proxy requests. Accepts the
// Authorization bearer token, x-api-key, x-goog-api-key, or the "key"
// query parameter (std Google API style). Comparison is constant time.
func APIKeyAuth(nexusKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, candidate := range candidateKeys(r) {
				if equalKeys(candidate, nexusKey) {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error"}}`))
		})
	}
}

func candidateKeys(r *http.Request) []string {
	var keys []string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		keys = append(keys, strings.TrimPrefix(auth, "Bearer "))
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		keys = append(keys, key)
	}
	if key := r.Header.Get("x-goog-api-key"); key != "" {
		keys = append(keys, key)
	}
	if key := r.URL.Query().Get("key"); key != "" {
		keys = append(keys, key)
	}
	return keys
}

func equalKeys(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
