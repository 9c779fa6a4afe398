package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// PhoneVerificationFailureKind classifies phone verification failures.
type PhoneVerificationFailureKind int

const (
	PhoneVerificationFailureNone PhoneVerificationFailureKind = iota
	PhoneVerificationFailureNoPhone
	PhoneVerificationFailureAlreadyVerified
	PhoneVerificationFailureGenerate
	PhoneVerificationFailureSave
	PhoneVerificationFailureNotify
	PhoneVerificationFailureMalformed
	PhoneVerificationFailureConsume
	PhoneVerificationFailurePhoneChanged
	PhoneVerificationFailureUpdate
)

// PhoneChallengeRecord is the flow-local view of a stored challenge.
type PhoneChallengeRecord struct {
	AccountID string
	Phone     string
	CodeHash  [32]byte
}

// PhoneVerificationResult carries the outcome of a request or confirm call.
type PhoneVerificationResult struct {
	Failure PhoneVerificationFailureKind
	Err     error
	Account store.Account
}

// PhoneVerificationDeps captures phone verification dependencies.
type PhoneVerificationDeps struct {
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int

	GenerateCode func(int) (string, error)
	HashCode     func(string) [32]byte
	ValidCode    func(string, int) bool

	SaveChallenge    func(context.Context, PhoneChallengeRecord, time.Duration) error
	ConsumeChallenge func(context.Context, string, [32]byte, int) (PhoneChallengeRecord, error)

	UpdateAccount func(context.Context, store.Account) (store.Account, error)
	Notify        func(context.Context, store.Account, string) error
}

// RunRequestPhoneVerification stores a fresh code for the account's current
// phone number and sends it. A new request replaces any pending code.
func RunRequestPhoneVerification(ctx context.Context, account store.Account, deps PhoneVerificationDeps) PhoneVerificationResult {
	if account.Phone == "" {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureNoPhone, Account: account}
	}
	if account.PhoneVerified {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureAlreadyVerified, Account: account}
	}

	code, err := deps.GenerateCode(deps.CodeDigits)
	if err != nil {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureGenerate, Err: err, Account: account}
	}

	rec := PhoneChallengeRecord{
		AccountID: account.ID,
		Phone:     account.Phone,
		CodeHash:  deps.HashCode(code),
	}
	if err := deps.SaveChallenge(ctx, rec, deps.CodeTTL); err != nil {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureSave, Err: err, Account: account}
	}

	if err := deps.Notify(ctx, account, code); err != nil {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureNotify, Err: err, Account: account}
	}
	return PhoneVerificationResult{Account: account}
}

// RunConfirmPhoneVerification consumes the pending challenge and marks the
// phone verified. The code only counts for the number it was sent to.
func RunConfirmPhoneVerification(ctx context.Context, account store.Account, code string, deps PhoneVerificationDeps) PhoneVerificationResult {
	if account.PhoneVerified {
		return PhoneVerificationResult{Account: account}
	}
	if !deps.ValidCode(code, deps.CodeDigits) {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureMalformed, Account: account}
	}

	rec, err := deps.ConsumeChallenge(ctx, account.ID, deps.HashCode(code), deps.MaxAttempts)
	if err != nil {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureConsume, Err: err, Account: account}
	}
	if rec.Phone != account.Phone {
		return PhoneVerificationResult{Failure: PhoneVerificationFailurePhoneChanged, Account: account}
	}

	account.PhoneVerified = true
	updated, err := deps.UpdateAccount(ctx, account)
	if err != nil {
		return PhoneVerificationResult{Failure: PhoneVerificationFailureUpdate, Err: err, Account: account}
	}
	return PhoneVerificationResult{Account: updated}
}
