// Package store declares the persistence contracts the engine depends on.
//
// Implementations live in the sub-packages: memory for tests and single
// process deployments, postgres for durable accounts and tokens, and
// redisstore for token stores backed by Lua scripts.
//
// Token secrets never reach a store. Callers generate them, and stores keep
// only the SHA-256 digest used for lookup.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown, expired or otherwise unusable records.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("store: conflict")
	// ErrTokenReused is returned when a refresh secret matches a record that
	// was already revoked.
	ErrTokenReused = errors.New("store: refresh token reused")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("store: unavailable")
)

// ConflictError names the unique field that caused a conflict.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return "store: conflict on " + e.Field
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Unique fields reported in ConflictError.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPhone    = "phone"
)

// Account is a registered principal. Accounts are deactivated, never deleted.
type Account struct {
	ID            string
	Username      string
	Email         string
	Phone         string
	FullName      string
	PasswordHash  string
	Role          string
	Active        bool
	PhoneVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RefreshToken is the persisted record of an issued refresh secret.
type RefreshToken struct {
	ID         string
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// ResetToken is the persisted record of an issued password-reset secret.
type ResetToken struct {
	ID         string
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	// Create inserts a. ID, CreatedAt and UpdatedAt are assigned when empty.
	Create(ctx context.Context, a Account) (Account, error)
	ByID(ctx context.Context, id string) (Account, error)
	ByUsername(ctx context.Context, username string) (Account, error)
	ByEmail(ctx context.Context, email string) (Account, error)
	// Update writes the mutable fields of a: phone, full name, password
	// hash, role and the two flags.
	Update(ctx context.Context, a Account) (Account, error)
}

// RefreshTokenStore persists refresh tokens. For any account at most one
// token is not revoked at a time.
type RefreshTokenStore interface {
	// Issue revokes every live token of the account and stores a new one in
	// one atomic step. It returns the plaintext secret.
	Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error)
	// Redeem returns the live record for secret. Revoked records yield
	// ErrTokenReused; unknown or expired ones yield ErrNotFound.
	Redeem(ctx context.Context, secret string) (RefreshToken, error)
	// Rotate redeems oldSecret and issues its replacement atomically.
	Rotate(ctx context.Context, oldSecret string, ttl time.Duration) (RefreshToken, string, error)
	// Revoke reports whether a record for secret existed.
	Revoke(ctx context.Context, secret string) (bool, error)
	RevokeAll(ctx context.Context, accountID string) error
}

// ResetTokenStore persists one-shot password-reset tokens.
type ResetTokenStore interface {
	// Issue invalidates pending tokens of the account and stores a new one.
	Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error)
	// Check returns the pending, unexpired record for secret without
	// changing it.
	Check(ctx context.Context, secret string) (ResetToken, error)
	// Consume marks the record used. It reports false when the record was not
	// pending and live.
	Consume(ctx context.Context, secret string) (bool, error)
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
