package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/darim/internal/apperror"
)

// UserRepository looks up user records. All SQL lives in the concrete
// implementation.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindPasswordByEmail(ctx context.Context, email string) (string, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// UserKeyRepository looks up the public key registered for a user.
type UserKeyRepository interface {
	FindByUserID(ctx context.Context, userID int64) (*UserKey, error)
}

// userRepository implements UserRepository with hand-written MySQL queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, name, password, avatar_url`

// FindByEmail retrieves a user by email.
// Returns apperror.NotFound("user") if no user has this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

// FindPasswordByEmail returns only the stored password hash.
func (r *userRepository) FindPasswordByEmail(ctx context.Context, email string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password FROM users WHERE email = ?`, email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NewNotFound("user")
	}
	if err != nil {
		return "", fmt.Errorf("querying password by email: %w", err)
	}
	return hash, nil
}

// FindByID retrieves a user by id.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var avatar sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user")
	}
	if err != nil {
		return nil, err
	}
	if avatar.Valid {
		user.AvatarURL = &avatar.String
	}
	return user, nil
}

// userKeyRepository implements UserKeyRepository over MySQL.
type userKeyRepository struct {
	db *sql.DB
}

// NewUserKeyRepository creates a user key repository backed by the given DB pool.
func NewUserKeyRepository(db *sql.DB) UserKeyRepository {
	return &userKeyRepository{db: db}
}

// FindByUserID returns apperror.NotFound("user_key") when the user has no key.
func (r *userKeyRepository) FindByUserID(ctx context.Context, userID int64) (*UserKey, error) {
	key := &UserKey{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, public_key FROM user_keys WHERE user_id = ?`, userID,
	).Scan(&key.UserID, &key.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user_key")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user key: %w", err)
	}
	return key, nil
}
