package auth

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/darim/internal/apperror"
)

// contextKeySession is the Echo context key holding the *UserSession.
const contextKeySession = "auth_session"

// RequireAuth returns middleware that rejects requests without a valid
// session with 401 and stores the session for downstream handlers.
func RequireAuth(sessions *SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			if token == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			session, err := sessions.Context(token).GetSession(c.Request().Context())
			if err != nil {
				slog.Error("reading session", slog.Any("error", err))
				return apperror.NewInternal(err)
			}
			if session == nil {
				clearSessionCookie(c)
				return apperror.NewUnauthorized("session expired or invalid")
			}

			c.Set(contextKeySession, session)
			return next(c)
		}
	}
}

// GetSession returns the session stored by RequireAuth, or nil.
func GetSession(c echo.Context) *UserSession {
	session, ok := c.Get(contextKeySession).(*UserSession)
	if !ok {
		return nil
	}
	return session
}
