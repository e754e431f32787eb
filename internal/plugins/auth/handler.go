package auth

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/darim/internal/apperror"
)

// sessionCookieName is the HTTP cookie used to store the session token.
const sessionCookieName = "darim_session"

// Handler handles the JSON auth endpoints. Handlers are thin: they bind the
// request, call the service, and render the response.
type Handler struct {
	service  AuthService
	sessions *SessionStore
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, sessions *SessionStore) *Handler {
	return &Handler{service: service, sessions: sessions}
}

// Login verifies credentials and installs a fresh session (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()

	session, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		// Unknown email and wrong password look the same from outside.
		if apperror.IsKind(err, apperror.KindNotFound) || apperror.IsKind(err, apperror.KindUnauthorized) {
			return apperror.NewUnauthorized("invalid email or password")
		}
		return err
	}

	// A session the caller already holds is replaced, not left to expire.
	if previous := getSessionToken(c); previous != "" {
		if err := h.sessions.Context(previous).Clear(ctx); err != nil {
			slog.Warn("failed to clear previous session", slog.Any("error", err))
		}
	}

	token, sc, err := h.sessions.New()
	if err != nil {
		return apperror.NewInternal(err)
	}
	if err := sc.SetSession(ctx,
		session.UserID,
		session.UserEmail,
		session.UserName,
		session.UserPublicKey,
		session.UserAvatarURL,
	); err != nil {
		return apperror.NewInternal(err)
	}

	h.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, dataResponse{Data: session})
}

// Session refreshes and returns the caller's session (GET /session).
func (h *Handler) Session(c echo.Context) error {
	sc := h.sessions.Context(getSessionToken(c))

	session, err := h.service.RefreshUserSession(c.Request().Context(), sc)
	if err != nil {
		if apperror.IsKind(err, apperror.KindUnauthorized) {
			clearSessionCookie(c)
		}
		return err
	}

	return c.JSON(http.StatusOK, dataResponse{Data: session})
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	sc := h.sessions.Context(getSessionToken(c))
	if err := sc.Clear(c.Request().Context()); err != nil {
		// The cookie is cleared regardless; the Redis key expires on its own.
		slog.Warn("failed to clear session", slog.Any("error", err))
	}

	if session := GetSession(c); session != nil {
		slog.Info("user logged out", slog.Int64("user_id", session.UserID))
	}

	clearSessionCookie(c)
	return c.JSON(http.StatusOK, dataResponse{Data: true})
}

// SignUpToken starts a registration (POST /sign-up-token).
func (h *Handler) SignUpToken(c echo.Context) error {
	var req SignUpTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	saved, err := h.service.SetSignUpToken(c.Request().Context(), req.Name, req.Email, req.Password, req.AvatarURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse{Data: saved})
}

// PasswordToken starts a password reset (POST /password-token).
func (h *Handler) PasswordToken(c echo.Context) error {
	var req PasswordTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	saved, err := h.service.SetPasswordToken(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse{Data: saved})
}

// bindAndValidate binds the JSON body into req and runs the registered
// validator. Both failures are reported as InvalidArgument.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewInvalidArgument("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		if appErr, ok := apperror.As(err); ok {
			return appErr
		}
		return apperror.NewInvalidArgument(err.Error())
	}
	return nil
}

// --- Cookie helpers ---

// getSessionToken reads the session token from the cookie.
func getSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets an HttpOnly, SameSite=Lax cookie that lives as long
// as the Redis session. Secure when the request arrived over TLS.
func (h *Handler) setSessionCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
