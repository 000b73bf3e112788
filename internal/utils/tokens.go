package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// GenerateSecureToken returns length random bytes, URL-safe base64 encoded
// without padding. Used for CSRF tokens and CSP nonces.
func GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("token length must be positive")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
