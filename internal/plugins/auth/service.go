package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/keyxmakerx/darim/internal/apperror"
	"github.com/keyxmakerx/darim/internal/sanitize"
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the stores directly.
type AuthService interface {
	// Login verifies credentials and assembles a session. It does not
	// install the session anywhere; the caller does.
	Login(ctx context.Context, email, password string) (*UserSession, error)

	// RefreshUserSession reloads name and avatar for the session held in sc.
	RefreshUserSession(ctx context.Context, sc SessionContext) (*UserSession, error)

	// SetSignUpToken stores a pending registration and mails its pin.
	SetSignUpToken(ctx context.Context, name, email, password string, avatarURL *string) (bool, error)

	// SetPasswordToken stores a temporary password for the user and mails it.
	SetPasswordToken(ctx context.Context, email string) (bool, error)
}

// MailSender delivers notification email. Failures are never fatal to the
// auth flows that call it.
type MailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// Option overrides one of the service's stores.
type Option func(*authService)

// WithUserRepository makes the service use repo instead of the factory default.
func WithUserRepository(repo UserRepository) Option {
	return func(s *authService) { s.users = repo }
}

// WithUserKeyRepository makes the service use repo instead of the factory default.
func WithUserKeyRepository(repo UserKeyRepository) Option {
	return func(s *authService) { s.userKeys = repo }
}

// WithSignUpTokenRepository makes the service use repo instead of the factory default.
func WithSignUpTokenRepository(repo SignUpTokenRepository) Option {
	return func(s *authService) { s.signUpTokens = repo }
}

// WithPasswordTokenRepository makes the service save every password token
// through repo, whichever user it belongs to.
func WithPasswordTokenRepository(repo PasswordTokenRepository) Option {
	return func(s *authService) { s.passwordTokens = repo }
}

// WithBaseURL sets the public URL used in notification links.
func WithBaseURL(baseURL string) Option {
	return func(s *authService) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// authService implements AuthService. Stores not given as options are built
// from the factory on first use and kept for the service's lifetime.
type authService struct {
	factory StoreFactory
	mailer  MailSender
	hasher  PasswordHasher
	baseURL string

	// marshal serializes tokens. Replaced in tests to exercise InvalidFormat.
	marshal func(any) ([]byte, error)

	dummyOnce sync.Once
	dummyHash string

	mu             sync.Mutex
	users          UserRepository
	userKeys       UserKeyRepository
	signUpTokens   SignUpTokenRepository
	passwordTokens PasswordTokenRepository
}

// NewAuthService creates a new auth service. mailer may be nil, in which
// case notifications are skipped.
func NewAuthService(factory StoreFactory, mailer MailSender, hasher PasswordHasher, opts ...Option) AuthService {
	s := &authService{
		factory: factory,
		mailer:  mailer,
		hasher:  hasher,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Lazily built stores ---

func (s *authService) userRepository() UserRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = s.factory.NewUserRepository()
	}
	return s.users
}

func (s *authService) userKeyRepository() UserKeyRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userKeys == nil {
		s.userKeys = s.factory.NewUserKeyRepository()
	}
	return s.userKeys
}

func (s *authService) signUpTokenRepository() SignUpTokenRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signUpTokens == nil {
		s.signUpTokens = s.factory.NewSignUpTokenRepository()
	}
	return s.signUpTokens
}

// passwordTokenRepository is never cached: the default store is scoped to
// a single user.
func (s *authService) passwordTokenRepository(userID int64) PasswordTokenRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passwordTokens != nil {
		return s.passwordTokens
	}
	return s.factory.NewPasswordTokenRepository(userID)
}

// --- Operations ---

// Login looks up the stored hash for email, verifies password against it,
// and on a match assembles the session from the user and their public key.
// An unknown email yields NotFound("user"); the HTTP layer folds that into
// Unauthorized. The password is still verified against a throwaway hash so
// both failures cost the same.
func (s *authService) Login(ctx context.Context, email, password string) (*UserSession, error) {
	users := s.userRepository()

	hash, err := users.FindPasswordByEmail(ctx, email)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			s.verifyAgainstDummy(password)
			loginAttempts.WithLabelValues(outcomeNotFound).Inc()
		} else {
			loginAttempts.WithLabelValues(outcomeError).Inc()
		}
		return nil, apperror.Wrap(err)
	}

	if !s.hasher.Verify(password, hash) {
		loginAttempts.WithLabelValues(outcomeUnauthorized).Inc()
		return nil, apperror.NewUnauthorized("invalid email or password")
	}

	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		loginAttempts.WithLabelValues(outcomeError).Inc()
		return nil, apperror.Wrap(err)
	}

	key, err := s.userKeyRepository().FindByUserID(ctx, user.ID)
	if err != nil {
		loginAttempts.WithLabelValues(outcomeError).Inc()
		return nil, apperror.Wrap(err)
	}

	loginAttempts.WithLabelValues(outcomeSuccess).Inc()
	slog.Info("user logged in", slog.Int64("user_id", user.ID))

	return &UserSession{
		UserID:        user.ID,
		UserEmail:     user.Email,
		UserName:      user.Name,
		UserPublicKey: key.PublicKey,
		UserAvatarURL: user.AvatarURL,
	}, nil
}

// verifyAgainstDummy burns one verification on a hash no account owns.
func (s *authService) verifyAgainstDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("darim-unknown-account")
		if err != nil {
			slog.Warn("failed to build dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}

// RefreshUserSession rewrites the session in sc with the user's current name
// and avatar. User id, email and public key carry over from the old session.
// The session is read back after the write; a context that cannot return
// it is reported as Unauthorized rather than papered over.
func (s *authService) RefreshUserSession(ctx context.Context, sc SessionContext) (*UserSession, error) {
	current, err := sc.GetSession(ctx)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	if current == nil {
		return nil, apperror.NewUnauthorized("no active session")
	}

	user, err := s.userRepository().FindByID(ctx, current.UserID)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			return nil, apperror.NewUnauthorized("account no longer exists")
		}
		return nil, apperror.Wrap(err)
	}

	if err := sc.SetSession(ctx,
		current.UserID,
		current.UserEmail,
		user.Name,
		current.UserPublicKey,
		user.AvatarURL,
	); err != nil {
		return nil, apperror.Wrap(err)
	}

	refreshed, err := sc.GetSession(ctx)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	if refreshed == nil {
		return nil, apperror.NewUnauthorized("session could not be refreshed")
	}
	return refreshed, nil
}

// SetSignUpToken validates input before touching any store, then stores a
// token holding an 8-character pin and the hashed password. The pin is
// mailed only after the store accepted the token. The name is stored
// exactly as given.
func (s *authService) SetSignUpToken(ctx context.Context, name, email, password string, avatarURL *string) (bool, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return false, apperror.NewInvalidArgument("name, email and password are required")
	}

	pin, err := randomAlphanumeric(signUpPinLength)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("generating pin: %w", err))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	token := SignUpToken{
		Pin:       pin,
		Name:      name,
		Email:     email,
		Password:  hash,
		AvatarURL: avatarURL,
	}

	serialized, err := s.marshal(token)
	if err != nil {
		return false, apperror.NewInvalidFormat(fmt.Errorf("serializing sign-up token: %w", err))
	}

	saved, err := s.signUpTokenRepository().Save(ctx, string(serialized))
	if err != nil {
		return false, apperror.Wrap(err)
	}
	if !saved {
		return false, nil
	}

	tokensIssued.WithLabelValues(tokenKindSignUp).Inc()

	s.notify(ctx, tokenKindSignUp, token.Email,
		"Welcome to Darim",
		fmt.Sprintf("Hello %s :)\n\nYou've joined Darim.\n\nPlease visit the link to finish the sign up process:\n%s/sign_up/%s",
			sanitize.PlainText(token.Name), s.baseURL, token.Pin),
	)

	return saved, nil
}

// SetPasswordToken stores a 32-character token id and a 512-character
// temporary password for the user registered under email, then mails both.
func (s *authService) SetPasswordToken(ctx context.Context, email string) (bool, error) {
	user, err := s.userRepository().FindByEmail(ctx, email)
	if err != nil {
		return false, apperror.Wrap(err)
	}

	id, err := randomAlphanumeric(passwordTokenIDLength)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("generating token id: %w", err))
	}
	password, err := randomAlphanumeric(passwordTokenPasswordLength)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("generating temporary password: %w", err))
	}

	token := PasswordToken{ID: id, Password: password}

	serialized, err := s.marshal(token)
	if err != nil {
		return false, apperror.NewInvalidFormat(fmt.Errorf("serializing password token: %w", err))
	}

	saved, err := s.passwordTokenRepository(user.ID).Save(ctx, string(serialized))
	if err != nil {
		return false, apperror.Wrap(err)
	}
	if !saved {
		return false, nil
	}

	tokensIssued.WithLabelValues(tokenKindPassword).Inc()

	s.notify(ctx, tokenKindPassword, email,
		"Please reset your password",
		fmt.Sprintf("Hello :)\n\nPlease copy the temporary password:\n%s\n\nand visit the link to reset your password:\n%s/password/%s",
			token.Password, s.baseURL, token.ID),
	)

	return saved, nil
}

// notify sends a notification email. The send error is logged and then
// dropped on purpose: the token is already stored and the caller's outcome
// must not depend on mail delivery.
func (s *authService) notify(ctx context.Context, kind, to, subject, body string) {
	if s.mailer == nil {
		slog.Debug("no mailer configured, skipping notification", slog.String("kind", kind))
		return
	}

	if err := s.mailer.SendMail(ctx, []string{to}, subject, body); err != nil {
		notificationFailures.WithLabelValues(kind).Inc()
		slog.Warn("failed to send notification email",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
	}
}
