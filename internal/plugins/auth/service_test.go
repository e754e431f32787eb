package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keyxmakerx/darim/internal/apperror"
)

// storedUser is the account most tests log in as.
var storedUser = User{
	ID:           1,
	Email:        "a@x.com",
	Name:         "Ann",
	PasswordHash: "hashed:secret",
	AvatarURL:    strPtr("https://cdn.example.com/ann.png"),
}

func usersWith(u User) *mockUserRepo {
	return &mockUserRepo{
		findPasswordByEmailFn: func(_ context.Context, email string) (string, error) {
			if email != u.Email {
				return "", apperror.NewNotFound("user")
			}
			return u.PasswordHash, nil
		},
		findByEmailFn: func(_ context.Context, email string) (*User, error) {
			if email != u.Email {
				return nil, apperror.NewNotFound("user")
			}
			cp := u
			return &cp, nil
		},
		findByIDFn: func(_ context.Context, id int64) (*User, error) {
			if id != u.ID {
				return nil, apperror.NewNotFound("user")
			}
			cp := u
			return &cp, nil
		},
	}
}

func keysFor(userID int64, publicKey string) *mockUserKeyRepo {
	return &mockUserKeyRepo{
		findByUserIDFn: func(_ context.Context, id int64) (*UserKey, error) {
			if id != userID {
				return nil, apperror.NewNotFound("user_key")
			}
			return &UserKey{UserID: id, PublicKey: publicKey}, nil
		},
	}
}

// newTestService builds a service whose stores all come from the factory.
func newTestService(f *mockFactory, mailer MailSender) *authService {
	return NewAuthService(f, mailer, &mockHasher{}, WithBaseURL("https://darim.io/")).(*authService)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := &mockFactory{t: t, users: usersWith(storedUser), userKeys: keysFor(1, "pk-1")}
	svc := newTestService(f, nil)

	session, err := svc.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, &UserSession{
		UserID:        1,
		UserEmail:     "a@x.com",
		UserName:      "Ann",
		UserPublicKey: "pk-1",
		UserAvatarURL: storedUser.AvatarURL,
	}, session)
}

func TestLogin_WithArgon2idHash(t *testing.T) {
	hasher := NewArgon2idHasher()
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	u := storedUser
	u.PasswordHash = hash

	svc := NewAuthService(&mockFactory{t: t, forbid: true}, nil, hasher,
		WithUserRepository(usersWith(u)),
		WithUserKeyRepository(keysFor(1, "pk-1")),
	)

	session, err := svc.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.UserID)

	_, err = svc.Login(context.Background(), "a@x.com", "wrong")
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
}

func TestLogin_WrongPassword(t *testing.T) {
	users := usersWith(storedUser)
	loaded := false
	findByEmail := users.findByEmailFn
	users.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		loaded = true
		return findByEmail(ctx, email)
	}

	svc := newTestService(&mockFactory{t: t, users: users}, nil)

	session, err := svc.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
	assert.False(t, loaded, "user record must not be loaded on mismatch")
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, users: usersWith(storedUser)}, nil)

	session, err := svc.Login(context.Background(), "missing@x.com", "secret")
	require.Error(t, err)
	assert.Nil(t, session)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindNotFound, appErr.Kind)
	assert.Equal(t, "user", appErr.Key)
}

func TestLogin_UnknownEmailStillVerifiesPassword(t *testing.T) {
	hasher := &mockHasher{}
	svc := NewAuthService(&mockFactory{t: t, users: usersWith(storedUser)}, nil, hasher)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), "missing@x.com", "secret")
		assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	}

	assert.Equal(t, 2, hasher.verifies, "one verification per failed lookup")
	assert.Equal(t, 1, hasher.hashes, "the throwaway hash is built once")
}

func TestLogin_MissingUserKey(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, users: usersWith(storedUser), userKeys: keysFor(99, "pk")}, nil)

	_, err := svc.Login(context.Background(), "a@x.com", "secret")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindNotFound, appErr.Kind)
	assert.Equal(t, "user_key", appErr.Key)
}

func TestLogin_StoreErrorPropagates(t *testing.T) {
	users := &mockUserRepo{
		findPasswordByEmailFn: func(context.Context, string) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	svc := newTestService(&mockFactory{t: t, users: users}, nil)

	_, err := svc.Login(context.Background(), "a@x.com", "secret")
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
}

// --- RefreshUserSession ---

func TestRefreshUserSession_NoSession(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, forbid: true}, nil)

	session, err := svc.RefreshUserSession(context.Background(), &memorySession{})
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
}

func TestRefreshUserSession_UpdatesNameAndAvatar(t *testing.T) {
	renamed := storedUser
	renamed.Name = "Annie"
	renamed.AvatarURL = nil

	svc := newTestService(&mockFactory{t: t, users: usersWith(renamed)}, nil)

	sc := &memorySession{session: &UserSession{
		UserID:        1,
		UserEmail:     "old@x.com",
		UserName:      "Ann",
		UserPublicKey: "pk-session",
		UserAvatarURL: strPtr("https://old.example.com/a.png"),
	}}

	session, err := svc.RefreshUserSession(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, int64(1), session.UserID)
	assert.Equal(t, "old@x.com", session.UserEmail, "email carries over from the session")
	assert.Equal(t, "pk-session", session.UserPublicKey, "public key carries over from the session")
	assert.Equal(t, "Annie", session.UserName)
	assert.Nil(t, session.UserAvatarURL)

	assert.Equal(t, 1, sc.sets)
	assert.Equal(t, session, sc.session)
}

func TestRefreshUserSession_UserGone(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, users: &mockUserRepo{}}, nil)

	sc := &memorySession{session: &UserSession{UserID: 5, UserEmail: "gone@x.com"}}

	_, err := svc.RefreshUserSession(context.Background(), sc)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
	assert.Zero(t, sc.sets)
}

func TestRefreshUserSession_SessionLostAfterWrite(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, users: usersWith(storedUser)}, nil)

	sc := &memorySession{
		session:     &UserSession{UserID: 1, UserEmail: "a@x.com", UserPublicKey: "pk"},
		forgetOnSet: true,
	}

	_, err := svc.RefreshUserSession(context.Background(), sc)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
}

func TestRefreshUserSession_SessionStoreError(t *testing.T) {
	svc := newTestService(&mockFactory{t: t, forbid: true}, nil)

	_, err := svc.RefreshUserSession(context.Background(), &memorySession{getErr: errors.New("redis down")})
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
}

// --- SetSignUpToken ---

func TestSetSignUpToken_RejectsBlankFields(t *testing.T) {
	tests := []struct {
		name, email, password string
	}{
		{"", "a@x.com", "pw"},
		{"Ann", "", "pw"},
		{"Ann", "a@x.com", ""},
		{"   ", "a@x.com", "pw"},
		{"Ann", "\t\n", "pw"},
		{"Ann", "a@x.com", "  "},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name+"|"+tt.email+"|"+tt.password, func(t *testing.T) {
			mailer := &mockMailer{}
			hasher := &mockHasher{}
			signUp := &mockTokenRepo{}
			svc := NewAuthService(&mockFactory{t: t, forbid: true}, mailer, hasher,
				WithSignUpTokenRepository(signUp),
			)

			saved, err := svc.SetSignUpToken(context.Background(), tt.name, tt.email, tt.password, nil)
			require.Error(t, err)
			assert.False(t, saved)
			assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

			assert.Empty(t, signUp.calls(), "no store access on invalid input")
			assert.Empty(t, mailer.attempts(), "no notification on invalid input")
			assert.Zero(t, hasher.hashes)
		})
	}
}

func TestSetSignUpToken_SavesAndNotifies(t *testing.T) {
	signUp := &mockTokenRepo{}
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{t: t, signUpTokens: signUp}, mailer)

	saved, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "secret", strPtr("https://x.com/a.png"))
	require.NoError(t, err)
	assert.True(t, saved)

	calls := signUp.calls()
	require.Len(t, calls, 1)

	var token SignUpToken
	require.NoError(t, json.Unmarshal([]byte(calls[0]), &token))
	assert.Len(t, token.Pin, 8)
	assert.True(t, isAlphanumeric(token.Pin))
	assert.Equal(t, "Ann", token.Name)
	assert.Equal(t, "a@x.com", token.Email)
	assert.Equal(t, "hashed:secret", token.Password, "only the hash is stored")
	assert.Equal(t, "https://x.com/a.png", *token.AvatarURL)

	sent := mailer.attempts()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a@x.com"}, sent[0].to)
	assert.Equal(t, "Welcome to Darim", sent[0].subject)
	assert.Contains(t, sent[0].body, "https://darim.io/sign_up/"+token.Pin)
	assert.NotContains(t, sent[0].body, "secret")
}

func TestSetSignUpToken_StoresNameVerbatim(t *testing.T) {
	for _, name := range []string{"<Ann>", "Ann <ann@x.com>", "Tom &amp; Jerry", "  Ann  "} {
		t.Run(name, func(t *testing.T) {
			signUp := &mockTokenRepo{}
			svc := newTestService(&mockFactory{t: t, signUpTokens: signUp}, nil)

			saved, err := svc.SetSignUpToken(context.Background(), name, "a@x.com", "pw", nil)
			require.NoError(t, err)
			assert.True(t, saved)

			calls := signUp.calls()
			require.Len(t, calls, 1)
			var token SignUpToken
			require.NoError(t, json.Unmarshal([]byte(calls[0]), &token))
			assert.Equal(t, name, token.Name)
		})
	}
}

func TestSetSignUpToken_MailBodyHasNoMarkup(t *testing.T) {
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{t: t}, mailer)

	_, err := svc.SetSignUpToken(context.Background(), "<b>Ann</b>", "a@x.com", "pw", nil)
	require.NoError(t, err)

	sent := mailer.attempts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].body, "Hello Ann :)")
	assert.NotContains(t, sent[0].body, "<b>")
}

func TestSetSignUpToken_NotSavedSendsNothing(t *testing.T) {
	signUp := &mockTokenRepo{saveFn: func(context.Context, string) (bool, error) { return false, nil }}
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{t: t, signUpTokens: signUp}, mailer)

	saved, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "secret", nil)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, mailer.attempts())
}

func TestSetSignUpToken_MailFailureIsSwallowed(t *testing.T) {
	mailer := &mockMailer{sendFn: func(context.Context, []string, string, string) error {
		return errors.New("smtp: 421 try later")
	}}
	svc := newTestService(&mockFactory{t: t}, mailer)

	saved, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "secret", nil)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Len(t, mailer.attempts(), 1)
}

func TestSetSignUpToken_SerializationFailure(t *testing.T) {
	signUp := &mockTokenRepo{}
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{t: t, signUpTokens: signUp}, mailer)
	svc.marshal = func(any) ([]byte, error) { return nil, errors.New("unsupported value") }

	saved, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "secret", nil)
	assert.False(t, saved)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidFormat))
	assert.Empty(t, signUp.calls())
	assert.Empty(t, mailer.attempts())
}

func TestSetSignUpToken_StoreError(t *testing.T) {
	signUp := &mockTokenRepo{saveFn: func(context.Context, string) (bool, error) {
		return false, errors.New("redis down")
	}}
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{t: t, signUpTokens: signUp}, mailer)

	_, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "secret", nil)
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
	assert.Empty(t, mailer.attempts())
}

// --- SetPasswordToken ---

func TestSetPasswordToken_UnknownEmail(t *testing.T) {
	mailer := &mockMailer{}
	f := &mockFactory{t: t, users: usersWith(storedUser)}
	svc := newTestService(f, mailer)

	saved, err := svc.SetPasswordToken(context.Background(), "missing@x.com")
	require.Error(t, err)
	assert.False(t, saved)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	assert.Zero(t, f.count("password_tokens"))
	assert.Empty(t, mailer.attempts())
}

func TestSetPasswordToken_SavesForUserAndNotifies(t *testing.T) {
	repo := &mockTokenRepo{}
	var scopedTo []int64
	f := &mockFactory{
		t:     t,
		users: usersWith(storedUser),
		passwordTokens: func(userID int64) PasswordTokenRepository {
			scopedTo = append(scopedTo, userID)
			return repo
		},
	}
	mailer := &mockMailer{}
	svc := newTestService(f, mailer)

	saved, err := svc.SetPasswordToken(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, []int64{1}, scopedTo)

	calls := repo.calls()
	require.Len(t, calls, 1)

	var token PasswordToken
	require.NoError(t, json.Unmarshal([]byte(calls[0]), &token))
	assert.Len(t, token.ID, 32)
	assert.Len(t, token.Password, 512)
	assert.True(t, isAlphanumeric(token.ID))
	assert.True(t, isAlphanumeric(token.Password))

	sent := mailer.attempts()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a@x.com"}, sent[0].to)
	assert.Equal(t, "Please reset your password", sent[0].subject)
	assert.Contains(t, sent[0].body, token.Password)
	assert.Contains(t, sent[0].body, "https://darim.io/password/"+token.ID)
}

func TestSetPasswordToken_MailFailureIsSwallowed(t *testing.T) {
	mailer := &mockMailer{sendFn: func(context.Context, []string, string, string) error {
		return errors.New("dial tcp: connection refused")
	}}
	svc := newTestService(&mockFactory{t: t, users: usersWith(storedUser)}, mailer)

	saved, err := svc.SetPasswordToken(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestSetPasswordToken_SerializationFailure(t *testing.T) {
	f := &mockFactory{t: t, users: usersWith(storedUser)}
	svc := newTestService(f, &mockMailer{})
	svc.marshal = func(any) ([]byte, error) { return nil, errors.New("unsupported value") }

	_, err := svc.SetPasswordToken(context.Background(), "a@x.com")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidFormat))
	assert.Zero(t, f.count("password_tokens"))
}

func TestSetPasswordToken_StoreError(t *testing.T) {
	repo := &mockTokenRepo{saveFn: func(context.Context, string) (bool, error) {
		return false, errors.New("redis down")
	}}
	mailer := &mockMailer{}
	svc := newTestService(&mockFactory{
		t:              t,
		users:          usersWith(storedUser),
		passwordTokens: func(int64) PasswordTokenRepository { return repo },
	}, mailer)

	_, err := svc.SetPasswordToken(context.Background(), "a@x.com")
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
	assert.Empty(t, mailer.attempts())
}

// --- Store construction ---

func TestStores_BuiltLazilyOnce(t *testing.T) {
	f := &mockFactory{t: t, users: usersWith(storedUser), userKeys: keysFor(1, "pk")}
	svc := newTestService(f, nil)

	assert.Zero(t, f.count("users"), "nothing is built up front")

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), "a@x.com", "secret")
		require.NoError(t, err)
	}
	_, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "pw", nil)
	require.NoError(t, err)
	_, err = svc.SetSignUpToken(context.Background(), "Bob", "b@x.com", "pw", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.count("users"))
	assert.Equal(t, 1, f.count("user_keys"))
	assert.Equal(t, 1, f.count("sign_up_tokens"))
}

func TestStores_PasswordTokenStorePerUser(t *testing.T) {
	bob := User{ID: 2, Email: "b@x.com", Name: "Bob"}
	users := &mockUserRepo{findByEmailFn: func(_ context.Context, email string) (*User, error) {
		switch email {
		case storedUser.Email:
			u := storedUser
			return &u, nil
		case bob.Email:
			u := bob
			return &u, nil
		}
		return nil, apperror.NewNotFound("user")
	}}

	var scopedTo []int64
	f := &mockFactory{
		t:     t,
		users: users,
		passwordTokens: func(userID int64) PasswordTokenRepository {
			scopedTo = append(scopedTo, userID)
			return &mockTokenRepo{}
		},
	}
	svc := newTestService(f, nil)

	for _, email := range []string{"a@x.com", "b@x.com", "a@x.com"} {
		_, err := svc.SetPasswordToken(context.Background(), email)
		require.NoError(t, err)
	}

	assert.Equal(t, []int64{1, 2, 1}, scopedTo)
}

func TestStores_OptionsBypassFactory(t *testing.T) {
	passwordRepo := &mockTokenRepo{}
	svc := NewAuthService(&mockFactory{t: t, forbid: true}, nil, &mockHasher{},
		WithUserRepository(usersWith(storedUser)),
		WithUserKeyRepository(keysFor(1, "pk")),
		WithSignUpTokenRepository(&mockTokenRepo{}),
		WithPasswordTokenRepository(passwordRepo),
	)

	_, err := svc.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)
	_, err = svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "pw", nil)
	require.NoError(t, err)
	_, err = svc.SetPasswordToken(context.Background(), "a@x.com")
	require.NoError(t, err)

	assert.Len(t, passwordRepo.calls(), 1)
}

func TestStores_ConcurrentFirstUse(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &mockFactory{t: t, users: usersWith(storedUser), userKeys: keysFor(1, "pk")}
	svc := newTestService(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(context.Background(), "a@x.com", "secret")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.count("users"))
	assert.Equal(t, 1, f.count("user_keys"))
}

func TestNotify_NilMailerSkips(t *testing.T) {
	svc := newTestService(&mockFactory{t: t}, nil)

	saved, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "pw", nil)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestWithBaseURL_TrimsTrailingSlash(t *testing.T) {
	mailer := &mockMailer{}
	svc := NewAuthService(&mockFactory{t: t}, mailer, &mockHasher{}, WithBaseURL("https://darim.io///"))

	_, err := svc.SetSignUpToken(context.Background(), "Ann", "a@x.com", "pw", nil)
	require.NoError(t, err)

	sent := mailer.attempts()
	require.Len(t, sent, 1)
	assert.True(t, strings.Contains(sent[0].body, "https://darim.io/sign_up/"))
}
