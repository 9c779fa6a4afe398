package flows

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// AccountStatusFailureKind classifies admin status and role changes.
type AccountStatusFailureKind int

const (
	AccountStatusFailureNone AccountStatusFailureKind = iota
	AccountStatusFailureSelf
	AccountStatusFailureUpdate
	AccountStatusFailureRevoke
)

// AccountStatusResult carries the stored account after the change.
type AccountStatusResult struct {
	Failure AccountStatusFailureKind
	Err     error
	Account store.Account
	// Changed is false when the account already had the requested state.
	Changed bool
}

// AccountStatusDeps captures admin account-change dependencies.
type AccountStatusDeps struct {
	UpdateAccount func(context.Context, store.Account) (store.Account, error)
	RevokeAll     func(context.Context, string) error
}

// RunSetAccountActive flips the active flag of target. Deactivation revokes
// every refresh token of the account after the flag is stored, so a refresh
// racing the change fails its own status check. An administrator cannot
// deactivate themselves.
func RunSetAccountActive(ctx context.Context, actorID string, target store.Account, active bool, deps AccountStatusDeps) AccountStatusResult {
	if !active && actorID == target.ID {
		return AccountStatusResult{Failure: AccountStatusFailureSelf, Account: target}
	}
	if target.Active == active {
		return AccountStatusResult{Account: target}
	}

	target.Active = active
	updated, err := deps.UpdateAccount(ctx, target)
	if err != nil {
		return AccountStatusResult{Failure: AccountStatusFailureUpdate, Err: err, Account: target}
	}

	if !active {
		if err := deps.RevokeAll(ctx, target.ID); err != nil {
			return AccountStatusResult{Failure: AccountStatusFailureRevoke, Err: err, Account: updated}
		}
	}
	return AccountStatusResult{Account: updated, Changed: true}
}

// RunSetRole stores role on target. An administrator cannot change their
// own role.
func RunSetRole(ctx context.Context, actorID string, target store.Account, role string, deps AccountStatusDeps) AccountStatusResult {
	if actorID == target.ID && role != target.Role {
		return AccountStatusResult{Failure: AccountStatusFailureSelf, Account: target}
	}
	if target.Role == role {
		return AccountStatusResult{Account: target}
	}

	target.Role = role
	updated, err := deps.UpdateAccount(ctx, target)
	if err != nil {
		return AccountStatusResult{Failure: AccountStatusFailureUpdate, Err: err, Account: target}
	}
	return AccountStatusResult{Account: updated, Changed: true}
}
