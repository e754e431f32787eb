package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/keyxmakerx/darim/internal/apperror"
)

// --- Mock stores ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	findByEmailFn         func(ctx context.Context, email string) (*User, error)
	findPasswordByEmailFn func(ctx context.Context, email string) (string, error)
	findByIDFn            func(ctx context.Context, id int64) (*User, error)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user")
}

func (m *mockUserRepo) FindPasswordByEmail(ctx context.Context, email string) (string, error) {
	if m.findPasswordByEmailFn != nil {
		return m.findPasswordByEmailFn(ctx, email)
	}
	return "", apperror.NewNotFound("user")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user")
}

// mockUserKeyRepo implements UserKeyRepository for testing.
type mockUserKeyRepo struct {
	findByUserIDFn func(ctx context.Context, userID int64) (*UserKey, error)
}

func (m *mockUserKeyRepo) FindByUserID(ctx context.Context, userID int64) (*UserKey, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, apperror.NewNotFound("user_key")
}

// mockTokenRepo implements both token repository interfaces and records
// every serialized token it is given.
type mockTokenRepo struct {
	saveFn func(ctx context.Context, serialized string) (bool, error)

	mu    sync.Mutex
	saved []string
}

func (m *mockTokenRepo) Save(ctx context.Context, serialized string) (bool, error) {
	m.mu.Lock()
	m.saved = append(m.saved, serialized)
	m.mu.Unlock()
	if m.saveFn != nil {
		return m.saveFn(ctx, serialized)
	}
	return true, nil
}

func (m *mockTokenRepo) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...)
}

// --- Mock factory ---

// mockFactory hands out the stores it was given and counts how often each
// constructor runs. With forbid set, any construction fails the test.
type mockFactory struct {
	t      *testing.T
	forbid bool

	users          UserRepository
	userKeys       UserKeyRepository
	signUpTokens   SignUpTokenRepository
	passwordTokens func(userID int64) PasswordTokenRepository

	mu    sync.Mutex
	built map[string]int
}

func (f *mockFactory) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.built == nil {
		f.built = map[string]int{}
	}
	f.built[name]++
	if f.forbid {
		f.t.Errorf("unexpected store construction: %s", name)
	}
}

func (f *mockFactory) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[name]
}

func (f *mockFactory) NewUserRepository() UserRepository {
	f.record("users")
	if f.users == nil {
		return &mockUserRepo{}
	}
	return f.users
}

func (f *mockFactory) NewUserKeyRepository() UserKeyRepository {
	f.record("user_keys")
	if f.userKeys == nil {
		return &mockUserKeyRepo{}
	}
	return f.userKeys
}

func (f *mockFactory) NewSignUpTokenRepository() SignUpTokenRepository {
	f.record("sign_up_tokens")
	if f.signUpTokens == nil {
		return &mockTokenRepo{}
	}
	return f.signUpTokens
}

func (f *mockFactory) NewPasswordTokenRepository(userID int64) PasswordTokenRepository {
	f.record("password_tokens")
	if f.passwordTokens == nil {
		return &mockTokenRepo{}
	}
	return f.passwordTokens(userID)
}

// --- Mock mailer and hasher ---

type sentMail struct {
	to      []string
	subject string
	body    string
}

// mockMailer implements MailSender and records every attempt.
type mockMailer struct {
	sendFn func(ctx context.Context, to []string, subject, body string) error

	mu   sync.Mutex
	sent []sentMail
}

func (m *mockMailer) SendMail(ctx context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, to, subject, body)
	}
	return nil
}

func (m *mockMailer) attempts() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// mockHasher implements PasswordHasher with a reversible scheme so tests
// stay fast. Hash and Verify calls are counted.
type mockHasher struct {
	mu       sync.Mutex
	hashes   int
	verifies int
}

func (h *mockHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return "hashed:" + password, nil
}

func (h *mockHasher) Verify(password, hash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return hash == "hashed:"+password
}

// --- In-memory session context ---

// memorySession implements SessionContext without Redis. With forgetOnSet
// a write silently drops the session, which the service must notice.
type memorySession struct {
	session     *UserSession
	getErr      error
	setErr      error
	forgetOnSet bool
	sets        int
}

func (s *memorySession) GetSession(context.Context) (*UserSession, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *memorySession) SetSession(_ context.Context, userID int64, email, name, publicKey string, avatarURL *string) error {
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	if s.forgetOnSet {
		s.session = nil
		return nil
	}
	s.session = &UserSession{
		UserID:        userID,
		UserEmail:     email,
		UserName:      name,
		UserPublicKey: publicKey,
		UserAvatarURL: avatarURL,
	}
	return nil
}

func (s *memorySession) Clear(context.Context) error {
	s.session = nil
	return nil
}

// --- Helpers ---

func strPtr(s string) *string { return &s }

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphanumeric, r) {
			return false
		}
	}
	return true
}
