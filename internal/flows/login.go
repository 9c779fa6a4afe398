package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureEmptyPassword
	LoginFailureUnknownUser
	LoginFailurePasswordMismatch
	LoginFailureInactive
	LoginFailureLookup
	LoginFailureIssue
)

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Account      store.Account
	AccessToken  string
	RefreshToken string
	HashUpgraded bool
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	UpgradeHashOnLogin bool

	AccountByUsername func(context.Context, string) (store.Account, error)
	UpdateAccount     func(context.Context, store.Account) (store.Account, error)

	VerifyPassword func(password, encodedHash string) bool
	NeedsRehash    func(string) bool
	HashPassword   func(string) (string, error)
	// EqualizeTiming burns one verification when no account matched, so an
	// unknown username costs the same as a wrong password.
	EqualizeTiming func(password string)

	IssueSession func(context.Context, store.Account) (string, string, error)
	Warn         func(string, ...any)
}

// RunLogin verifies credentials and issues a session for active accounts.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.EqualizeTiming == nil {
		deps.EqualizeTiming = func(string) {}
	}

	if password == "" {
		return LoginResult{Failure: LoginFailureEmptyPassword}
	}

	account, err := deps.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			deps.EqualizeTiming(password)
			return LoginResult{Failure: LoginFailureUnknownUser, Err: err}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	if !deps.VerifyPassword(password, account.PasswordHash) {
		return LoginResult{Failure: LoginFailurePasswordMismatch, Account: account}
	}

	if !account.Active {
		return LoginResult{Failure: LoginFailureInactive, Account: account}
	}

	upgraded := false
	if deps.UpgradeHashOnLogin && deps.NeedsRehash != nil && deps.NeedsRehash(account.PasswordHash) {
		if hash, err := deps.HashPassword(password); err == nil {
			account.PasswordHash = hash
			if updated, err := deps.UpdateAccount(ctx, account); err == nil {
				account = updated
				upgraded = true
			} else {
				deps.Warn("password hash upgrade update failed", "account_id", account.ID, "error", err)
			}
		} else {
			deps.Warn("password hash upgrade generation failed", "account_id", account.ID, "error", err)
		}
	}
	password = ""

	access, refresh, err := deps.IssueSession(ctx, account)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: account}
	}

	return LoginResult{
		Account:      account,
		AccessToken:  access,
		RefreshToken: refresh,
		HashUpgraded: upgraded,
	}
}
