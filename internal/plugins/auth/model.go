// Package auth handles login, session refresh, and the two ephemeral-token
// workflows (sign-up confirmation and password reset). The service talks to
// its stores and the mailer only through the interfaces declared here, so
// every collaborator can be replaced by a fake.
package auth

// User is a registered account. Read-only from this package's perspective.
type User struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	PasswordHash string  `json:"-"` // Never expose in JSON responses.
	AvatarURL    *string `json:"avatar_url,omitempty"`
}

// UserKey is the public key registered for a user. One per user.
type UserKey struct {
	UserID    int64  `json:"user_id"`
	PublicKey string `json:"public_key"`
}

// UserSession is what an authenticated caller carries between requests. It
// is rebuilt on every login and refresh and lives only in the session context.
type UserSession struct {
	UserID        int64   `json:"user_id"`
	UserEmail     string  `json:"user_email"`
	UserName      string  `json:"user_name"`
	UserPublicKey string  `json:"user_public_key"`
	UserAvatarURL *string `json:"user_avatar_url"`
}

// valid reports whether a decoded session identifies a user.
func (s *UserSession) valid() bool {
	return s != nil && s.UserID > 0 && s.UserEmail != ""
}

// SignUpToken is a pending registration, confirmed later with its pin.
type SignUpToken struct {
	Pin       string  `json:"pin"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Password  string  `json:"password"` // Already hashed.
	AvatarURL *string `json:"avatar_url"`
}

// PasswordToken grants a password reset: ID names the reset request and
// Password is the temporary password mailed to the user.
type PasswordToken struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// Token lengths. These are entropy parameters, not formatting choices.
const (
	signUpPinLength             = 8
	passwordTokenIDLength       = 32
	passwordTokenPasswordLength = 512
)

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email" validate:"max=255"`
	Password string `json:"password" validate:"max=128"`
}

// SignUpTokenRequest is the body of POST /sign-up-token. Emptiness after
// trimming is checked by the service, not here.
type SignUpTokenRequest struct {
	Name      string  `json:"name" validate:"max=100"`
	Email     string  `json:"email" validate:"omitempty,email,max=255"`
	Password  string  `json:"password" validate:"max=128"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=1024"`
}

// PasswordTokenRequest is the body of POST /password-token.
type PasswordTokenRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// dataResponse wraps successful JSON payloads as {"data": ...}.
type dataResponse struct {
	Data any `json:"data"`
}
