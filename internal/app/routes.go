package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/darim/internal/plugins/auth"
	"github.com/keyxmakerx/darim/internal/plugins/smtp"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes: health and metrics at the
// root, and the auth plugin under /api/v1/auth.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Operational routes ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Auth plugin ---

	mailer := smtp.NewMailService(a.Config.SMTP)
	factory := auth.NewStoreFactory(a.DB, a.Redis,
		a.Config.Auth.SignUpTokenTTL,
		a.Config.Auth.PasswordTokenTTL,
	)
	authService := auth.NewAuthService(factory, mailer, auth.NewArgon2idHasher(),
		auth.WithBaseURL(a.Config.BaseURL),
	)
	sessions := auth.NewSessionStore(a.Redis, a.Config.Auth.SessionTTL)
	authHandler := auth.NewHandler(authService, sessions)

	auth.RegisterRoutes(e.Group("/api/v1/auth"), authHandler, sessions)
}

// healthz reports whether MariaDB and Redis answer a ping.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unavailable"
		healthy = false
	}

	if !healthy {
		status["status"] = "degraded"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	status["status"] = "ok"
	return c.JSON(http.StatusOK, status)
}
