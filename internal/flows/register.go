package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

// RegisterFailureKind classifies registration failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureHash
	RegisterFailureDuplicate
	RegisterFailureCreate
	RegisterFailureIssue
)

// RegisterRecord is the validated, normalized registration input.
type RegisterRecord struct {
	Username string
	Email    string
	Phone    string
	FullName string
	Password string
	Role     string
}

// RegisterResult carries the created account and its first session.
type RegisterResult struct {
	Failure      RegisterFailureKind
	Err          error
	Account      store.Account
	AccessToken  string
	RefreshToken string
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	HashPassword  func(string) (string, error)
	CreateAccount func(context.Context, store.Account) (store.Account, error)
	IssueSession  func(context.Context, store.Account) (string, string, error)
}

// RunRegister creates an active account and signs it in. Uniqueness is
// enforced by the account store, so concurrent registrations for the same
// username cannot both succeed.
func RunRegister(ctx context.Context, rec RegisterRecord, deps RegisterDeps) RegisterResult {
	hash, err := deps.HashPassword(rec.Password)
	rec.Password = ""
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	account, err := deps.CreateAccount(ctx, store.Account{
		Username:     rec.Username,
		Email:        rec.Email,
		Phone:        rec.Phone,
		FullName:     rec.FullName,
		PasswordHash: hash,
		Role:         rec.Role,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureCreate, Err: err}
	}

	access, refresh, err := deps.IssueSession(ctx, account)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureIssue, Err: err, Account: account}
	}

	return RegisterResult{
		Account:      account,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
