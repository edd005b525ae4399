// Package auth authenticates administrators by password and by short-lived
// bearer tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a username or password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword returns a bcrypt hash suitable for LICENSE_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// LegacyHash returns the unsalted SHA-256 hex digest used by older
// deployments. New hashes should come from HashPassword.
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Verifier checks admin credentials against one configured account.
type Verifier struct {
	username     string
	passwordHash string
}

// NewVerifier creates a verifier for username. passwordHash is either a
// bcrypt hash or a 64-character SHA-256 hex digest.
func NewVerifier(username, passwordHash string) *Verifier {
	return &Verifier{
		username:     username,
		passwordHash: strings.TrimSpace(passwordHash),
	}
}

// Verify returns ErrInvalidCredentials unless username and password match.
// The username comparison runs in constant time.
func (v *Verifier) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passOK := v.checkPassword(password)
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

func (v *Verifier) checkPassword(password string) bool {
	if v.passwordHash == "" {
		return false
	}
	if isBcrypt(v.passwordHash) {
		return bcrypt.CompareHashAndPassword([]byte(v.passwordHash), []byte(password)) == nil
	}
	want := strings.ToLower(v.passwordHash)
	return subtle.ConstantTimeCompare([]byte(LegacyHash(password)), []byte(want)) == 1
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
