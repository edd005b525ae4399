package middleware

import (
	"net/http"

	"github.com/channellicense/channellicense/internal/api/models"
)

// securityHeaders are sent on every response. License keys and admin
// listings must not be cached by intermediaries.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders adds standard security headers to all HTTP responses.
// Handlers may still override them.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range securityHeaders {
			w.Header().Set(h[0], h[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS returns middleware that enforces HTTPS connections when enabled.
// It checks the X-Forwarded-Proto header set by load balancers. Requests
// without the header are direct connections and pass through.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				writeProblem(w, r, models.KindTLSRequired, "Requests must be sent over HTTPS")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
