package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

var (
	errSelfDeactivation = errors.New("account: administrators cannot deactivate themselves")
	errSelfDemotion     = errors.New("role: administrators cannot change their own role")
	errUnknownRole      = errors.New("role: unknown role")
)

// UpdateProfile applies changes to the caller's own account. Changing the
// phone number clears its verified flag.
func (e *Engine) UpdateProfile(ctx context.Context, accessToken string, changes ProfileUpdate) (store.Account, error) {
	if err := e.ready(); err != nil {
		return store.Account{}, err
	}
	if err := e.allow(ctx, EndpointGeneral); err != nil {
		return store.Account{}, err
	}

	account, err := e.authenticate(ctx, EndpointGeneral, accessToken)
	if err != nil {
		return store.Account{}, err
	}

	if changes.FullName != nil {
		name := strings.TrimSpace(*changes.FullName)
		if err := validateFullName(name); err != nil {
			return store.Account{}, err
		}
		account.FullName = name
	}
	if changes.Phone != nil {
		phone := ""
		if strings.TrimSpace(*changes.Phone) != "" {
			if phone, err = NormalizePhone(*changes.Phone); err != nil {
				return store.Account{}, err
			}
		}
		if phone != account.Phone {
			account.Phone = phone
			account.PhoneVerified = false
		}
	}

	updated, err := e.updateAccount(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = conflictFrom(err)
		} else {
			err = e.storeFailure(ctx, EndpointGeneral, account.ID, err)
		}
		e.emitAudit(ctx, auditEventProfileUpdate, EndpointGeneral, false, account.ID, err, nil)
		return store.Account{}, err
	}

	e.emitAudit(ctx, auditEventProfileUpdate, EndpointGeneral, true, account.ID, nil, nil)
	return updated, nil
}

// SetAccountActive activates or deactivates accountID. The caller must be an
// administrator. Deactivation revokes every refresh token of the account;
// its access tokens are rejected from the next call on.
func (e *Engine) SetAccountActive(ctx context.Context, adminToken, accountID string, active bool) (store.Account, error) {
	admin, target, err := e.adminTarget(ctx, adminToken, accountID)
	if err != nil {
		return store.Account{}, err
	}

	result := flows.RunSetAccountActive(ctx, admin.ID, target, active, e.accountStatusDeps())
	metadata := func() map[string]string {
		return map[string]string{
			"actor":  admin.ID,
			"active": strconv.FormatBool(active),
		}
	}

	switch result.Failure {
	case flows.AccountStatusFailureNone:
	case flows.AccountStatusFailureSelf:
		return store.Account{}, invalidInput(errSelfDeactivation)
	default:
		err = e.storeFailure(ctx, EndpointGeneral, target.ID, result.Err)
		e.emitAudit(ctx, auditEventAccountStatusChange, EndpointGeneral, false, target.ID, err, metadata)
		return store.Account{}, err
	}
	if !result.Changed {
		return result.Account, nil
	}

	if active {
		e.metricInc(MetricAccountActivated)
	} else {
		e.metricInc(MetricAccountDeactivated)
	}
	e.emitAudit(ctx, auditEventAccountStatusChange, EndpointGeneral, true, target.ID, nil, metadata)
	return result.Account, nil
}

// SetRole changes the role of accountID. The caller must be an
// administrator. The new role is enforced by Authorize immediately; the
// role claim in access tokens changes at the next issuance.
func (e *Engine) SetRole(ctx context.Context, adminToken, accountID string, role Role) (store.Account, error) {
	if !role.Valid() {
		return store.Account{}, invalidInput(errUnknownRole)
	}

	admin, target, err := e.adminTarget(ctx, adminToken, accountID)
	if err != nil {
		return store.Account{}, err
	}

	result := flows.RunSetRole(ctx, admin.ID, target, string(role), e.accountStatusDeps())
	metadata := func() map[string]string {
		return map[string]string{
			"actor": admin.ID,
			"from":  target.Role,
			"to":    string(role),
		}
	}

	switch result.Failure {
	case flows.AccountStatusFailureNone:
	case flows.AccountStatusFailureSelf:
		return store.Account{}, invalidInput(errSelfDemotion)
	default:
		err = e.storeFailure(ctx, EndpointGeneral, target.ID, result.Err)
		e.emitAudit(ctx, auditEventRoleChange, EndpointGeneral, false, target.ID, err, metadata)
		return store.Account{}, err
	}
	if !result.Changed {
		return result.Account, nil
	}

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditEventRoleChange, EndpointGeneral, true, target.ID, nil, metadata)
	return result.Account, nil
}

func (e *Engine) accountStatusDeps() flows.AccountStatusDeps {
	return flows.AccountStatusDeps{
		UpdateAccount: e.updateAccount,
		RevokeAll:     e.revokeAllRefresh,
	}
}

// adminTarget authorizes an administrator and loads the account they act on.
func (e *Engine) adminTarget(ctx context.Context, adminToken, accountID string) (store.Account, store.Account, error) {
	if err := e.ready(); err != nil {
		return store.Account{}, store.Account{}, err
	}
	if err := e.allow(ctx, EndpointGeneral); err != nil {
		return store.Account{}, store.Account{}, err
	}

	admin, err := e.Authorize(ctx, adminToken, PolicyAdmin)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}

	if accountID == "" {
		return store.Account{}, store.Account{}, ErrAccountNotFound
	}
	target, err := e.accountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Account{}, store.Account{}, ErrAccountNotFound
		}
		return store.Account{}, store.Account{}, e.storeFailure(ctx, EndpointGeneral, accountID, err)
	}
	return admin, target, nil
}
