package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/auth"
)

// adminKey is the context key for the authenticated administrator.
type adminKey struct{}

// CredentialVerifier checks a username and password.
type CredentialVerifier interface {
	Verify(username, password string) error
}

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.JWTClaims, error)
}

// AdminAuthConfig configures AdminAuth.
type AdminAuthConfig struct {
	// Enabled turns authentication on. When false every request passes.
	Enabled bool

	// Credentials verifies Basic credentials.
	Credentials CredentialVerifier

	// Tokens validates Bearer tokens. Nil disables Bearer authentication.
	Tokens TokenValidator

	// Realm is reported in WWW-Authenticate.
	Realm string
}

// AdminAuth creates authentication middleware for administrative routes.
// It accepts HTTP Basic credentials or a bearer token issued by the token
// endpoint.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	realm := cfg.Realm
	if realm == "" {
		realm = "channellicense"
	}

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, realm, "missing authorization header")
				return
			}

			scheme, credentials, ok := strings.Cut(authHeader, " ")
			if !ok || credentials == "" {
				writeUnauthorized(w, r, realm, "invalid authorization header format")
				return
			}

			var admin string
			switch {
			case strings.EqualFold(scheme, "Basic"):
				username, password, ok := r.BasicAuth()
				if !ok || cfg.Credentials == nil {
					writeUnauthorized(w, r, realm, "invalid authorization header format")
					return
				}
				if err := cfg.Credentials.Verify(username, password); err != nil {
					writeUnauthorized(w, r, realm, "invalid credentials")
					return
				}
				admin = username

			case strings.EqualFold(scheme, "Bearer") && cfg.Tokens != nil:
				claims, err := cfg.Tokens.ValidateAccessToken(credentials)
				if err != nil {
					switch {
					case errors.Is(err, auth.ErrAccessTokenExpired):
						writeUnauthorized(w, r, realm, "access token has expired")
					case errors.Is(err, auth.ErrInvalidAccessToken):
						writeUnauthorized(w, r, realm, "invalid access token")
					default:
						writeUnauthorized(w, r, realm, "authentication failed")
					}
					return
				}
				admin = claims.Admin

			default:
				writeUnauthorized(w, r, realm, "unsupported authorization scheme")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", admin))
			ctx := context.WithValue(r.Context(), adminKey{}, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 problem with a Basic challenge.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, realm, detail string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	writeProblem(w, r, models.KindUnauthorized, detail)
}

// GetAdmin retrieves the authenticated administrator from the context.
// Returns an empty string if not authenticated.
func GetAdmin(ctx context.Context) string {
	if admin, ok := ctx.Value(adminKey{}).(string); ok {
		return admin
	}
	return ""
}
