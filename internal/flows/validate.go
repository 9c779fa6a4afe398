package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// ValidateFailureKind classifies access-token validation failures for
// root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureUnauthorized
	ValidateFailureAccountNotFound
	ValidateFailureLookup
	ValidateFailureInactive
	ValidateFailureRole
	ValidateFailureUnverified
)

// ValidateResult returns either the resolved account or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	Account store.Account
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.Claims, error)
	AccountByID func(context.Context, string) (store.Account, error)

	// AllowRole reports whether the stored role passes. Nil admits every role.
	AllowRole            func(string) bool
	RequireVerifiedPhone bool
}

// RunValidate verifies the token signature and expiry, then reloads the
// account. Status, role and phone verification are always read from the
// store; the role claim is never trusted for authorization.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}

	account, err := deps.AccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureAccountNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureLookup, Err: err, Claims: claims}
	}

	if !account.Active {
		return ValidateResult{Failure: ValidateFailureInactive, Claims: claims, Account: account}
	}
	if deps.AllowRole != nil && !deps.AllowRole(account.Role) {
		return ValidateResult{Failure: ValidateFailureRole, Claims: claims, Account: account}
	}
	if deps.RequireVerifiedPhone && !account.PhoneVerified {
		return ValidateResult{Failure: ValidateFailureUnverified, Claims: claims, Account: account}
	}

	return ValidateResult{Claims: claims, Account: account}
}
