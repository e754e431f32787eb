package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for pending tokens.
const (
	signUpTokenKeyPrefix   = "sign_up_token:"
	passwordTokenKeyPrefix = "password_token:"
)

// SignUpTokenRepository persists serialized sign-up tokens. Save reports
// whether the token was stored.
type SignUpTokenRepository interface {
	Save(ctx context.Context, serializedToken string) (bool, error)
}

// PasswordTokenRepository persists a serialized password token for the one
// user it was built for.
type PasswordTokenRepository interface {
	Save(ctx context.Context, serializedToken string) (bool, error)
}

// signUpTokenRepository stores tokens under sign_up_token:<pin>. A pin that
// is already taken is not overwritten; Save reports false instead.
type signUpTokenRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSignUpTokenRepository creates a Redis-backed sign-up token store.
func NewSignUpTokenRepository(rdb *redis.Client, ttl time.Duration) SignUpTokenRepository {
	return &signUpTokenRepository{redis: rdb, ttl: ttl}
}

// Save keys the token by its pin, which is the only field this store reads.
func (r *signUpTokenRepository) Save(ctx context.Context, serializedToken string) (bool, error) {
	var keyed struct {
		Pin string `json:"pin"`
	}
	if err := json.Unmarshal([]byte(serializedToken), &keyed); err != nil {
		return false, fmt.Errorf("reading sign-up token pin: %w", err)
	}
	if keyed.Pin == "" {
		return false, errors.New("sign-up token has no pin")
	}

	ok, err := r.redis.SetNX(ctx, signUpTokenKeyPrefix+keyed.Pin, serializedToken, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("storing sign-up token in Redis: %w", err)
	}
	return ok, nil
}

// passwordTokenRepository stores one token per user under
// password_token:<user id>. A newer request replaces the older token.
type passwordTokenRepository struct {
	redis  *redis.Client
	userID int64
	ttl    time.Duration
}

// NewPasswordTokenRepository creates a Redis-backed password token store
// scoped to userID.
func NewPasswordTokenRepository(rdb *redis.Client, userID int64, ttl time.Duration) PasswordTokenRepository {
	return &passwordTokenRepository{redis: rdb, userID: userID, ttl: ttl}
}

func (r *passwordTokenRepository) Save(ctx context.Context, serializedToken string) (bool, error) {
	key := passwordTokenKeyPrefix + strconv.FormatInt(r.userID, 10)
	if err := r.redis.Set(ctx, key, serializedToken, r.ttl).Err(); err != nil {
		return false, fmt.Errorf("storing password token in Redis: %w", err)
	}
	return true, nil
}
