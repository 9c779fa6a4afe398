package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureRedeem
	LogoutFailureRevoke
)

// LogoutResult reports whether a refresh record was revoked.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	Revoked bool
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Redeem    func(context.Context, string) (store.RefreshToken, error)
	Revoke    func(context.Context, string) (bool, error)
	RevokeAll func(context.Context, string) error
}

// RunLogout revokes secret when it belongs to accountID. Unknown, revoked,
// expired or foreign secrets are a successful no-op.
func RunLogout(ctx context.Context, accountID, secret string, deps LogoutDeps) LogoutResult {
	if secret == "" {
		return LogoutResult{}
	}

	rec, err := deps.Redeem(ctx, secret)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrTokenReused) {
			return LogoutResult{}
		}
		return LogoutResult{Failure: LogoutFailureRedeem, Err: err}
	}
	if rec.AccountID != accountID {
		return LogoutResult{}
	}

	revoked, err := deps.Revoke(ctx, secret)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureRevoke, Err: err}
	}
	return LogoutResult{Revoked: revoked}
}

// RunLogoutAll revokes every refresh token of accountID.
func RunLogoutAll(ctx context.Context, accountID string, deps LogoutDeps) LogoutResult {
	if err := deps.RevokeAll(ctx, accountID); err != nil {
		return LogoutResult{Failure: LogoutFailureRevoke, Err: err}
	}
	return LogoutResult{Revoked: true}
}
