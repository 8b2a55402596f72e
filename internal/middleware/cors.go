// Package middleware provides HTTP middleware for the Kido tutoring API.
package middleware

import "net/http"

// CORS returns middleware that handles CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if matched, explicit := matchOrigin(allowedOrigins, origin); matched {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// Credentials are only allowed for explicit origins. Echoing a
				// wildcard-matched origin with Allow-Credentials enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed, and whether the match was an
// explicit origin rather than a wildcard.
func matchOrigin(allowed []string, origin string) (bool, bool) {
	wildcard := false
	for _, o := range allowed {
		if o == origin {
			return true, true
		}
		if o == "*" {
			wildcard = true
		}
	}
	return wildcard, false
}
