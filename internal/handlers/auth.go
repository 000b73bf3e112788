package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const adminRealm = `Basic realm="memtest admin", charset="UTF-8"`

// AuthHandler guards the study team's admin routes with HTTP basic auth.
type AuthHandler struct {
	log         *zap.Logger
	credentials func() (username, passwordHash string)
}

// NewAuthHandler returns a guard for the given bcrypt hash. With an empty
// hash every admin request is refused.
func NewAuthHandler(log *zap.Logger, username, passwordHash string) *AuthHandler {
	return NewAuthHandlerFunc(log, func() (string, string) { return username, passwordHash })
}

// NewAuthHandlerFunc reads the credentials on every request, so that a
// reloaded configuration takes effect without a restart.
func NewAuthHandlerFunc(log *zap.Logger, credentials func() (username, passwordHash string)) *AuthHandler {
	return &AuthHandler{log: log, credentials: credentials}
}

// AdminRequired rejects requests without valid admin credentials.
func (h *AuthHandler) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, hash := h.credentials()
		if hash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access is disabled"})
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !check(username, hash, user, pass) {
			if ok {
				h.log.Warn("Admin login failed", zap.String("username", user), zap.String("client_ip", c.ClientIP()))
			}
			c.Header("WWW-Authenticate", adminRealm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("admin", user)
		c.Next()
	}
}

func check(username, hash, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	// Always run bcrypt so a wrong username takes as long as a wrong password.
	passOK := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
	return userOK && passOK
}

// HashPassword returns the bcrypt hash stored in the admin configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
