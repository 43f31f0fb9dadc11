// Package middleware provides HTTP middleware for the opsbridge API.
package middleware

import "net/http"

// CORS returns middleware that handles CORS headers. The embedded frontend
// is same-origin; this exists for development setups serving the UI from a
// separate dev server.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					if o != "*" {
						// Credentials only for explicit origins: wildcard plus
						// credentials enables CSRF.
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					break
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
