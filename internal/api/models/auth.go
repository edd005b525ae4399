package models

// TokenResponse is the response body for POST /v1/auth/token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   Timestamp `json:"expiresAt"`
}
