// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (DB pool, Redis client, Echo instance)
// and wires the auth plugin onto it.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/darim/internal/apperror"
	"github.com/keyxmakerx/darim/internal/config"
	"github.com/keyxmakerx/darim/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool holding users and their keys.
	DB *sql.DB

	// Redis holds sessions and the pending sign-up and password tokens.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// We log our own startup line.
	e.HideBanner = true
	e.HidePort = true

	// So c.RealIP() reports the client rather than the reverse proxy.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fd00::/8",
	})

	e.Validator = middleware.NewValidator()

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the request id must exist before the logger reads it, and
// recovery sits inside the logger so a panic is logged as a 500.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders())

	// The browser client is served from BaseURL and sends the session cookie.
	a.Echo.Use(middleware.CORS([]string{a.Config.BaseURL}))
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
}

// errorHandler maps domain errors (AppError) and Echo's own HTTP errors to
// JSON responses. Anything else becomes a generic 500.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := errorResponse{
		Error:   string(apperror.KindInternal),
		Message: apperror.SafeMessage(err),
	}

	var echoErr *echo.HTTPError
	if appErr, ok := apperror.As(err); ok {
		code = appErr.Code
		body = errorResponse{
			Error:   string(appErr.Kind),
			Message: appErr.Message,
			Key:     appErr.Key,
		}

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("kind", string(appErr.Kind)),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else if errors.As(err, &echoErr) {
		// Router errors such as 404 and 405.
		code = echoErr.Code
		body.Error = errorKindForStatus(code)
		if msg, ok := echoErr.Message.(string); ok {
			body.Message = msg
		} else {
			body.Message = http.StatusText(code)
		}
	} else {
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, body); err != nil {
		slog.Error("writing error response", slog.Any("error", err))
	}
}

// errorKindForStatus names errors that did not originate as an AppError.
func errorKindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return string(apperror.KindInvalidArgument)
	case http.StatusUnauthorized:
		return string(apperror.KindUnauthorized)
	case http.StatusNotFound:
		return string(apperror.KindNotFound)
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		if code >= 500 {
			return string(apperror.KindInternal)
		}
		return "request_error"
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Darim server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
