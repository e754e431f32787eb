package auth

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreFactory builds the default stores the service falls back on when a
// store was not supplied explicitly.
type StoreFactory interface {
	NewUserRepository() UserRepository
	NewUserKeyRepository() UserKeyRepository
	NewSignUpTokenRepository() SignUpTokenRepository
	NewPasswordTokenRepository(userID int64) PasswordTokenRepository
}

// storeFactory builds MySQL- and Redis-backed stores from shared pools.
type storeFactory struct {
	db               *sql.DB
	redis            *redis.Client
	signUpTokenTTL   time.Duration
	passwordTokenTTL time.Duration
}

// NewStoreFactory creates a factory over the shared MySQL pool and Redis
// client. The TTLs become the Redis expiry of each token.
func NewStoreFactory(db *sql.DB, rdb *redis.Client, signUpTokenTTL, passwordTokenTTL time.Duration) StoreFactory {
	return &storeFactory{
		db:               db,
		redis:            rdb,
		signUpTokenTTL:   signUpTokenTTL,
		passwordTokenTTL: passwordTokenTTL,
	}
}

func (f *storeFactory) NewUserRepository() UserRepository {
	return NewUserRepository(f.db)
}

func (f *storeFactory) NewUserKeyRepository() UserKeyRepository {
	return NewUserKeyRepository(f.db)
}

func (f *storeFactory) NewSignUpTokenRepository() SignUpTokenRepository {
	return NewSignUpTokenRepository(f.redis, f.signUpTokenTTL)
}

func (f *storeFactory) NewPasswordTokenRepository(userID int64) PasswordTokenRepository {
	return NewPasswordTokenRepository(f.redis, userID, f.passwordTokenTTL)
}
