package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// SessionContext is the caller's session state for one request. It is
// passed explicitly into every operation that needs it.
type SessionContext interface {
	// GetSession returns the current session, or nil if there is none.
	GetSession(ctx context.Context) (*UserSession, error)

	SetSession(ctx context.Context, userID int64, email, name, publicKey string, avatarURL *string) error

	// Clear removes the session.
	Clear(ctx context.Context) error
}

// SessionStore hands out Redis-backed session contexts keyed by the token
// carried in the session cookie.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessionStore creates a session store whose entries expire after ttl.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{redis: rdb, ttl: ttl}
}

// Context returns the session context for an existing token. An empty
// token yields a context with no session.
func (s *SessionStore) Context(token string) SessionContext {
	return &redisSessionContext{store: s, token: token}
}

// New generates a fresh token and returns it with its (empty) context.
func (s *SessionStore) New() (string, SessionContext, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(b)
	return token, s.Context(token), nil
}

// TTL is how long a session lives after its last write.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

type redisSessionContext struct {
	store *SessionStore
	token string
}

func (c *redisSessionContext) key() string {
	return sessionKeyPrefix + c.token
}

func (c *redisSessionContext) GetSession(ctx context.Context) (*UserSession, error) {
	if c.token == "" {
		return nil, nil
	}

	data, err := c.store.redis.Get(ctx, c.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var session UserSession
	if err := json.Unmarshal(data, &session); err != nil || !session.valid() {
		// A corrupt entry is treated as no session at all.
		slog.Warn("discarding unreadable session", slog.Any("error", err))
		return nil, nil
	}
	return &session, nil
}

func (c *redisSessionContext) SetSession(ctx context.Context, userID int64, email, name, publicKey string, avatarURL *string) error {
	if c.token == "" {
		return errors.New("session context has no token")
	}

	data, err := json.Marshal(UserSession{
		UserID:        userID,
		UserEmail:     email,
		UserName:      name,
		UserPublicKey: publicKey,
		UserAvatarURL: avatarURL,
	})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := c.store.redis.Set(ctx, c.key(), data, c.store.ttl).Err(); err != nil {
		return fmt.Errorf("storing session in Redis: %w", err)
	}
	return nil
}

func (c *redisSessionContext) Clear(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	if err := c.store.redis.Del(ctx, c.key()).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}
