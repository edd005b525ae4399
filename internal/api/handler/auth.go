package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/api/response"
	"github.com/channellicense/channellicense/internal/auth"
)

// CredentialVerifier checks admin credentials.
type CredentialVerifier interface {
	Verify(username, password string) error
}

// TokenIssuer issues admin access tokens.
type TokenIssuer interface {
	GenerateAccessToken(admin string) (string, time.Time, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	credentials CredentialVerifier
	tokens      TokenIssuer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(credentials CredentialVerifier, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		tokens:      tokens,
	}
}

// IssueToken handles POST /v1/auth/token - exchanges Basic credentials for a
// bearer token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="channellicense", charset="UTF-8"`)
		response.Unauthorized(w, r, "basic credentials required")
		return
	}

	if err := h.credentials.Verify(username, password); err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="channellicense", charset="UTF-8"`)
		response.Unauthorized(w, r, "invalid credentials")
		return
	}

	token, expiresAt, err := h.tokens.GenerateAccessToken(username)
	if err != nil {
		if errors.Is(err, auth.ErrSigningKeyMissing) {
			response.ServiceUnavailable(w, r, "token issuance is not configured")
			return
		}
		response.InternalError(w, r, "failed to issue token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   models.Timestamp(expiresAt),
	})
}
