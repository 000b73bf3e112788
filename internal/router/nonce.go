package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"memtest-go/internal/utils"
)

const CspNonceContextKey = "csp_nonce"

// NonceMiddleware exposes the CSP nonce of the cookie session. The nonce is
// kept for the whole browser session so that scripts in htmx fragments match
// the policy sent with the first full page.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := sessionToken(sessions.Default(c), CspNonceContextKey)
		if err != nil {
			abortInternal(c, "failed to create CSP nonce", err)
			return
		}
		c.Set(CspNonceContextKey, nonce)
		c.Next()
	}
}

// sessionToken returns the random token stored under key, creating it on
// first use.
func sessionToken(s sessions.Session, key string) (string, error) {
	if token, ok := s.Get(key).(string); ok && token != "" {
		return token, nil
	}
	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return "", err
	}
	s.Set(key, token)
	if err := s.Save(); err != nil {
		return "", err
	}
	return token, nil
}
