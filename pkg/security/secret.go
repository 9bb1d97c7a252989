package security

import (
	"crypto/rand"
	"encoding/base64"
)

// secretLen is the number of random bytes in an opaque token secret.
const secretLen = 64

// NewSecret returns a 512-bit random secret encoded as URL-safe base64,
// suitable for refresh and password-reset tokens. Uniqueness is enforced by
// the store; a collision surfaces as a persistence error.
func NewSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
