package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memtest-go/internal/handlers"
	"memtest-go/internal/session"
)

const sessionCookieKey = "memtest_session"

// SessionSource creates and looks up test sessions.
type SessionSource interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
}

// SessionLoader binds the browser to a test session. The session ID lives in
// the signed cookie; unknown or expired IDs get a fresh session in intake.
func SessionLoader(log *zap.Logger, source SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		ctx := c.Request.Context()

		if id, ok := cookie.Get(sessionCookieKey).(string); ok && id != "" {
			_, err := source.Get(ctx, id)
			if err == nil {
				c.Set(handlers.SessionIDKey, id)
				c.Next()
				return
			}
			if !errors.Is(err, session.ErrNotFound) {
				abortInternal(c, "failed to load session", err)
				return
			}
			log.Debug("Session expired, starting a new one", zap.String("session_id", id))
		}

		s, err := source.Create(ctx)
		if err != nil {
			abortInternal(c, "failed to create session", err)
			return
		}
		cookie.Set(sessionCookieKey, s.ID)
		if err := cookie.Save(); err != nil {
			abortInternal(c, "failed to save session cookie", err)
			return
		}
		c.Set(handlers.SessionIDKey, s.ID)
		c.Next()
	}
}

func abortInternal(c *gin.Context, msg string, err error) {
	_ = c.Error(errors.Join(errors.New(msg), err))
	c.AbortWithStatus(http.StatusInternalServerError)
}
