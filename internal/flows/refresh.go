package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureRotate
	RefreshFailureAccountLookup
	RefreshFailureAccountInactive
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	AccountID    string
	Account      store.Account
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RefreshTTL time.Duration

	ParseSecret      func(string) error
	Rotate           func(context.Context, string, time.Duration) (store.RefreshToken, string, error)
	RevokeAll        func(context.Context, string) error
	AccountByID      func(context.Context, string) (store.Account, error)
	IssueAccessToken func(store.Account) (string, error)
	Warn             func(string, ...any)
}

// RunRefresh rotates the presented refresh secret and issues a new pair.
// The old secret is revoked by the same store step that creates the new one.
func RunRefresh(ctx context.Context, secret string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	if err := deps.ParseSecret(secret); err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	rec, next, err := deps.Rotate(ctx, secret, deps.RefreshTTL)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTokenReused):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, AccountID: rec.AccountID}
		case errors.Is(err, store.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err}
		}
	}

	account, err := deps.AccountByID(ctx, rec.AccountID)
	if err != nil {
		revokeAfterFailure(ctx, deps, rec.AccountID)
		return RefreshResult{Failure: RefreshFailureAccountLookup, Err: err, AccountID: rec.AccountID}
	}
	if !account.Active {
		revokeAfterFailure(ctx, deps, rec.AccountID)
		return RefreshResult{Failure: RefreshFailureAccountInactive, AccountID: rec.AccountID, Account: account}
	}

	access, err := deps.IssueAccessToken(account)
	if err != nil {
		revokeAfterFailure(ctx, deps, rec.AccountID)
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, AccountID: rec.AccountID, Account: account}
	}

	return RefreshResult{
		AccountID:    account.ID,
		Account:      account,
		AccessToken:  access,
		RefreshToken: next,
	}
}

// revokeAfterFailure drops the freshly rotated secret so a failed refresh
// never leaves a usable token behind.
func revokeAfterFailure(ctx context.Context, deps RefreshDeps, accountID string) {
	if deps.RevokeAll == nil || accountID == "" {
		return
	}
	if err := deps.RevokeAll(ctx, accountID); err != nil {
		deps.Warn("refresh cleanup revoke failed", "account_id", accountID, "error", err)
	}
}
