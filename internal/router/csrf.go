package router

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	csrfTokenSessionKey = "csrf_token"
	csrfTokenFormKey    = "_csrf"
	csrfTokenContextKey = "csrf_token"
	csrfTokenHeaderKey  = "X-CSRF-Token"
)

var errInvalidCSRF = errors.New("invalid CSRF token")

// CSRFProtection keeps one token per cookie session and requires it on every
// unsafe request, either as the _csrf form field or the X-CSRF-Token header.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := sessionToken(sessions.Default(c), csrfTokenSessionKey)
		if err != nil {
			abortInternal(c, "failed to create CSRF token", err)
			return
		}
		c.Set(csrfTokenContextKey, token)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		submitted := c.PostForm(csrfTokenFormKey)
		if submitted == "" {
			submitted = c.GetHeader(csrfTokenHeaderKey)
		}
		if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
			if c.GetHeader("HX-Request") == "true" {
				c.Header("HX-Redirect", "/")
			}
			_ = c.Error(errInvalidCSRF)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
