package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// PasswordResetFailureKind classifies forgot/reset failures.
type PasswordResetFailureKind int

const (
	PasswordResetFailureNone PasswordResetFailureKind = iota
	PasswordResetFailureLookup
	PasswordResetFailureIssue
	PasswordResetFailureNotify
	PasswordResetFailureMalformed
	PasswordResetFailureInvalidToken
	PasswordResetFailureCheck
	PasswordResetFailureHash
	PasswordResetFailureConsume
	PasswordResetFailureUpdate
	PasswordResetFailureRevoke
)

// PasswordResetResult carries the outcome of a forgot or reset call.
type PasswordResetResult struct {
	Failure PasswordResetFailureKind
	Err     error
	// AccountID is set only when the account is known to the caller's
	// context; it must never reach a client.
	AccountID string
	// Dispatched reports whether a reset secret was handed to the notifier.
	Dispatched bool
}

// PasswordResetDeps captures forgot/reset dependencies.
type PasswordResetDeps struct {
	ResetTTL time.Duration

	AccountByEmail func(context.Context, string) (store.Account, error)
	AccountByID    func(context.Context, string) (store.Account, error)
	UpdateAccount  func(context.Context, store.Account) (store.Account, error)

	ParseSecret  func(string) error
	IssueReset   func(context.Context, string, time.Duration) (string, error)
	CheckReset   func(context.Context, string) (store.ResetToken, error)
	ConsumeReset func(context.Context, string) (bool, error)
	RevokeAll    func(context.Context, string) error

	HashPassword func(string) (string, error)
	Notify       func(context.Context, store.Account, string) error

	// SleepEnumerationDelay pads every response with the same random delay.
	SleepEnumerationDelay func(context.Context) error
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.SleepEnumerationDelay == nil {
		deps.SleepEnumerationDelay = func(context.Context) error { return nil }
	}
}

// RunForgotPassword issues a reset secret for an active account registered
// under email and hands it to the notifier. Callers must answer identically
// whether or not an account was found.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) PasswordResetResult {
	normalizePasswordResetDeps(&deps)
	res := forgotPassword(ctx, email, deps)
	_ = deps.SleepEnumerationDelay(ctx)
	return res
}

func forgotPassword(ctx context.Context, email string, deps PasswordResetDeps) PasswordResetResult {
	account, err := deps.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PasswordResetResult{}
		}
		return PasswordResetResult{Failure: PasswordResetFailureLookup, Err: err}
	}
	if !account.Active {
		return PasswordResetResult{AccountID: account.ID}
	}

	secret, err := deps.IssueReset(ctx, account.ID, deps.ResetTTL)
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureIssue, Err: err, AccountID: account.ID}
	}

	if err := deps.Notify(ctx, account, secret); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureNotify, Err: err, AccountID: account.ID}
	}
	return PasswordResetResult{AccountID: account.ID, Dispatched: true}
}

// RunResetPassword replaces the password of the account owning secret and
// revokes all of its refresh tokens. Refresh tokens are revoked before the
// secret is consumed and again after the password is written, so a stored
// new password never coexists with a session issued under the old one. A
// failed first revocation leaves the secret usable for a retry. The secret is
// consumed before the password is written, so it can succeed at most once.
func RunResetPassword(ctx context.Context, secret, newPassword string, deps PasswordResetDeps) PasswordResetResult {
	normalizePasswordResetDeps(&deps)
	if err := deps.SleepEnumerationDelay(ctx); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureCheck, Err: err}
	}

	if err := deps.ParseSecret(secret); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureMalformed, Err: err}
	}

	rec, err := deps.CheckReset(ctx, secret)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PasswordResetResult{Failure: PasswordResetFailureInvalidToken, Err: err}
		}
		return PasswordResetResult{Failure: PasswordResetFailureCheck, Err: err}
	}

	hash, err := deps.HashPassword(newPassword)
	newPassword = ""
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureHash, Err: err, AccountID: rec.AccountID}
	}

	if err := deps.RevokeAll(ctx, rec.AccountID); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureRevoke, Err: err, AccountID: rec.AccountID}
	}

	consumed, err := deps.ConsumeReset(ctx, secret)
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureConsume, Err: err, AccountID: rec.AccountID}
	}
	if !consumed {
		return PasswordResetResult{Failure: PasswordResetFailureInvalidToken, AccountID: rec.AccountID}
	}

	account, err := deps.AccountByID(ctx, rec.AccountID)
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureUpdate, Err: err, AccountID: rec.AccountID}
	}
	account.PasswordHash = hash
	if _, err := deps.UpdateAccount(ctx, account); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureUpdate, Err: err, AccountID: rec.AccountID}
	}

	// Sessions issued with the old password between the two revocations.
	if err := deps.RevokeAll(ctx, rec.AccountID); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureRevoke, Err: err, AccountID: rec.AccountID}
	}
	return PasswordResetResult{AccountID: rec.AccountID}
}
