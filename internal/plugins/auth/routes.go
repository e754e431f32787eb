package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the auth endpoints on g (normally /api/v1/auth).
// Everything except logout is public; logout needs a live session.
func RegisterRoutes(g *echo.Group, h *Handler, sessions *SessionStore) {
	g.POST("/login", h.Login)
	g.GET("/session", h.Session)
	g.POST("/sign-up-token", h.SignUpToken)
	g.POST("/password-token", h.PasswordToken)

	g.POST("/logout", h.Logout, RequireAuth(sessions))
}
