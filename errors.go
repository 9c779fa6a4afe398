package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown username or a
	// wrong password. The two cases are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when a deactivated account presents
	// valid credentials or a valid access token.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountNotFound is returned by admin operations for an unknown account ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrConflict is returned when a username, email or phone is already taken.
	ErrConflict = errors.New("account already exists")
	// ErrInvalidToken covers every unusable access, refresh or reset token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps backend failures. It is retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidInput is returned when input fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller's role does not satisfy a Policy.
	ErrForbidden = errors.New("forbidden")
	// ErrPhoneNotVerified is returned by policies requiring a verified phone.
	ErrPhoneNotVerified = errors.New("phone not verified")
	// ErrVerificationInvalid covers wrong, expired or exhausted phone codes.
	ErrVerificationInvalid = errors.New("verification code invalid")
	// ErrSessionNotIssued is returned by Register when the account was
	// stored but its first session could not be. It also matches
	// ErrStoreUnavailable; the caller should sign in with Login.
	ErrSessionNotIssued = errors.New("account created, session not issued")
	// ErrEngineNotReady is returned when the engine is nil or was built
	// without a required dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError is returned when an endpoint's window is exhausted.
type RateLimitError struct {
	Endpoint   Endpoint
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Endpoint, e.RetryAfter)
}

// Is makes RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ConflictError names the field that is already taken.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return "account already exists: " + e.Field + " taken"
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
