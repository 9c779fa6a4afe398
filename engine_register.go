package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Register creates an active account with the user role and signs it in.
// A taken username, email or phone yields a *ConflictError.
//
// The account is stored before the session is issued. If issuing fails,
// Register returns a Session carrying only Account together with
// ErrSessionNotIssued; retrying Register would then conflict, so callers
// should fall back to Login.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.allow(ctx, EndpointRegister); err != nil {
		return nil, err
	}

	in, err := e.normalizeRegister(in)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, EndpointRegister, false, "", err, nil)
		return nil, err
	}

	result := flows.RunRegister(ctx, flows.RegisterRecord{
		Username: in.Username,
		Email:    in.Email,
		Phone:    in.Phone,
		FullName: in.FullName,
		Password: in.Password,
		Role:     string(RoleUser),
	}, flows.RegisterDeps{
		HashPassword:  e.passwords.Hash,
		CreateAccount: e.createAccount,
		IssueSession:  e.issueSession,
	})

	switch result.Failure {
	case flows.RegisterFailureNone:
	case flows.RegisterFailureDuplicate:
		err := conflictFrom(result.Err)
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegisterDuplicate, EndpointRegister, false, "", err, func() map[string]string {
			return map[string]string{"field": conflictField(err)}
		})
		return nil, err
	case flows.RegisterFailureHash:
		e.logger.Error("password_hash_failed", e.logFields(ctx, EndpointRegister, "", result.Err)...)
		e.emitAudit(ctx, auditEventRegisterFailure, EndpointRegister, false, "", result.Err, nil)
		return nil, result.Err
	case flows.RegisterFailureIssue:
		err := e.storeFailure(ctx, EndpointRegister, result.Account.ID, result.Err)
		e.emitAudit(ctx, auditEventRegisterFailure, EndpointRegister, false, result.Account.ID, err, func() map[string]string {
			return map[string]string{"account_created": "true"}
		})
		return &Session{Account: result.Account}, fmt.Errorf("%w: %w", ErrSessionNotIssued, err)
	default:
		err := e.storeFailure(ctx, EndpointRegister, result.Account.ID, result.Err)
		e.emitAudit(ctx, auditEventRegisterFailure, EndpointRegister, false, result.Account.ID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, EndpointRegister, true, result.Account.ID, nil, nil)
	e.logger.Info("account_registered",
		zap.String("account_id", result.Account.ID),
		zap.String("client_ip", ClientIPFromContext(ctx)),
	)

	return e.newSession(result.Account, result.AccessToken, result.RefreshToken), nil
}

// Provision creates an active account with role for operator tooling. It
// applies the registration rules but skips rate limiting and issues no
// session.
func (e *Engine) Provision(ctx context.Context, in RegisterInput, role Role) (store.Account, error) {
	if err := e.ready(); err != nil {
		return store.Account{}, err
	}
	if !role.Valid() {
		return store.Account{}, invalidInput(errors.New("role: unknown role"))
	}

	in, err := e.normalizeRegister(in)
	if err != nil {
		return store.Account{}, err
	}

	hash, err := e.passwords.Hash(in.Password)
	if err != nil {
		return store.Account{}, err
	}
	account, err := e.createAccount(ctx, store.Account{
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         string(role),
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Account{}, conflictFrom(err)
		}
		return store.Account{}, e.storeFailure(ctx, EndpointRegister, "", err)
	}

	e.emitAudit(ctx, auditEventAccountProvisioned, EndpointRegister, true, account.ID, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	e.logger.Info("account_provisioned",
		zap.String("account_id", account.ID),
		zap.String("role", string(role)),
	)
	return account, nil
}

// conflictFrom converts a store conflict into the public error, keeping the
// field name when the store reported one.
func conflictFrom(err error) error {
	var ce *store.ConflictError
	if errors.As(err, &ce) && ce.Field != "" {
		return &ConflictError{Field: ce.Field}
	}
	return ErrConflict
}

func conflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}
