package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Login verifies credentials and issues a session. Any refresh token the
// account held before is revoked. An unknown username and a wrong password
// both return ErrInvalidCredentials; only a correct password on a
// deactivated account returns ErrAccountInactive.
func (e *Engine) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.allow(ctx, EndpointLogin); err != nil {
		return nil, err
	}

	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	result := flows.RunLogin(ctx, strings.TrimSpace(username), password, flows.LoginDeps{
		UpgradeHashOnLogin: e.config.Password.UpgradeOnLogin,
		AccountByUsername:  e.accountByUsername,
		UpdateAccount:      e.updateAccount,
		VerifyPassword:     e.passwords.Verify,
		NeedsRehash:        e.passwords.NeedsRehash,
		HashPassword:       e.passwords.Hash,
		EqualizeTiming: func(password string) {
			_ = e.passwords.Verify(password, e.timingHash)
		},
		IssueSession: e.issueSession,
		Warn:         e.warner(ctx, EndpointLogin),
	})

	switch result.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureEmptyPassword, flows.LoginFailureUnknownUser, flows.LoginFailurePasswordMismatch:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, EndpointLogin, false, result.Account.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case flows.LoginFailureInactive:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, EndpointLogin, false, result.Account.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	default:
		e.metricInc(MetricLoginFailure)
		err := e.storeFailure(ctx, EndpointLogin, result.Account.ID, result.Err)
		e.emitAudit(ctx, auditEventLoginFailure, EndpointLogin, false, result.Account.ID, err, nil)
		return nil, err
	}

	if result.HashUpgraded {
		e.metricInc(MetricPasswordHashUpgraded)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, EndpointLogin, true, result.Account.ID, nil, nil)

	return e.newSession(result.Account, result.AccessToken, result.RefreshToken), nil
}

// Refresh exchanges a refresh secret for a new pair. The presented secret is
// revoked in the same store step that creates its replacement, so a secret
// can be exchanged once. Every rejection returns ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, refreshSecret string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.allow(ctx, EndpointRefresh); err != nil {
		return nil, err
	}

	result := flows.RunRefresh(ctx, refreshSecret, flows.RefreshDeps{
		RefreshTTL:       e.config.JWT.RefreshTTL,
		ParseSecret:      parseOpaqueSecret,
		Rotate:           e.rotateRefresh,
		RevokeAll:        e.revokeAllRefresh,
		AccountByID:      e.accountByID,
		IssueAccessToken: e.issueAccessToken,
		Warn:             e.warner(ctx, EndpointRefresh),
	})

	switch result.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureMalformed, flows.RefreshFailureNotFound, flows.RefreshFailureAccountInactive:
		return nil, e.refreshRejected(ctx, result.AccountID, ErrInvalidToken)
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh_reuse_detected", e.logFields(ctx, EndpointRefresh, result.AccountID, nil)...)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, EndpointRefresh, false, result.AccountID, store.ErrTokenReused, nil)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidToken
	case flows.RefreshFailureAccountLookup:
		if errors.Is(result.Err, store.ErrNotFound) {
			return nil, e.refreshRejected(ctx, result.AccountID, ErrInvalidToken)
		}
		return nil, e.refreshRejected(ctx, result.AccountID, e.storeFailure(ctx, EndpointRefresh, result.AccountID, result.Err))
	default:
		return nil, e.refreshRejected(ctx, result.AccountID, e.storeFailure(ctx, EndpointRefresh, result.AccountID, result.Err))
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, EndpointRefresh, true, result.AccountID, nil, nil)

	return e.newSession(result.Account, result.AccessToken, result.RefreshToken), nil
}

func (e *Engine) refreshRejected(ctx context.Context, accountID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, EndpointRefresh, false, accountID, err, nil)
	return err
}

// Logout revokes refreshSecret when it belongs to the caller. It succeeds
// for unknown, already revoked or foreign secrets.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshSecret string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.allow(ctx, EndpointGeneral); err != nil {
		return err
	}

	account, err := e.authenticate(ctx, EndpointGeneral, accessToken)
	if err != nil {
		return err
	}

	result := flows.RunLogout(ctx, account.ID, refreshSecret, e.logoutDeps())
	if result.Failure != flows.LogoutFailureNone {
		err := e.storeFailure(ctx, EndpointGeneral, account.ID, result.Err)
		e.emitAudit(ctx, auditEventLogout, EndpointGeneral, false, account.ID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, EndpointGeneral, true, account.ID, nil, func() map[string]string {
		if result.Revoked {
			return map[string]string{"revoked": "true"}
		}
		return map[string]string{"revoked": "false"}
	})
	return nil
}

// LogoutAll revokes every refresh token of the caller. Access tokens already
// issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.allow(ctx, EndpointGeneral); err != nil {
		return err
	}

	account, err := e.authenticate(ctx, EndpointGeneral, accessToken)
	if err != nil {
		return err
	}

	result := flows.RunLogoutAll(ctx, account.ID, e.logoutDeps())
	if result.Failure != flows.LogoutFailureNone {
		err := e.storeFailure(ctx, EndpointGeneral, account.ID, result.Err)
		e.emitAudit(ctx, auditEventLogoutAll, EndpointGeneral, false, account.ID, err, nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, EndpointGeneral, true, account.ID, nil, nil)
	return nil
}

func (e *Engine) logoutDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		Redeem:    e.redeemRefresh,
		Revoke:    e.revokeRefresh,
		RevokeAll: e.revokeAllRefresh,
	}
}

// warner adapts the logger to the key/value Warn hook used by flows.
func (e *Engine) warner(ctx context.Context, endpoint Endpoint) func(string, ...any) {
	return e.logger.Sugar().With(
		zap.String("endpoint", string(endpoint)),
		zap.String("client_ip", ClientIPFromContext(ctx)),
	).Warnw
}

func parseOpaqueSecret(secret string) error {
	_, err := internal.ParseOpaqueSecret(secret)
	return err
}
