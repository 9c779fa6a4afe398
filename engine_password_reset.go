package authcore

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"go.uber.org/zap"
)

// ForgotPassword sends a reset secret to the owner of email. It returns nil
// whether or not such an account exists, and takes the same padded time in
// both cases.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.allow(ctx, EndpointForgotPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	result := flows.RunForgotPassword(ctx, NormalizeEmail(email), e.passwordResetDeps())

	switch result.Failure {
	case flows.PasswordResetFailureNone:
	case flows.PasswordResetFailureLookup:
		err := e.storeFailure(ctx, EndpointForgotPassword, "", result.Err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, EndpointForgotPassword, false, "", err, nil)
		return err
	default:
		// Issue and delivery failures are not reported to the caller, or the
		// answer would reveal that the account exists.
		e.logger.Error("password_reset_dispatch_failed", e.logFields(ctx, EndpointForgotPassword, result.AccountID, result.Err)...)
		e.emitAudit(ctx, auditEventPasswordResetRequest, EndpointForgotPassword, false, result.AccountID, storeUnavailable(result.Err), nil)
		return nil
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, EndpointForgotPassword, true, result.AccountID, nil, func() map[string]string {
		if result.Dispatched {
			return map[string]string{"dispatched": "true"}
		}
		return map[string]string{"dispatched": "false"}
	})
	return nil
}

// ResetPassword sets newPassword on the account owning secret and revokes all
// of its refresh tokens. Unknown, used, expired and malformed secrets all
// return ErrInvalidToken after the same padded delay.
func (e *Engine) ResetPassword(ctx context.Context, secret, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.allow(ctx, EndpointResetPassword); err != nil {
		return err
	}
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	result := flows.RunResetPassword(ctx, secret, newPassword, e.passwordResetDeps())

	switch result.Failure {
	case flows.PasswordResetFailureNone:
	case flows.PasswordResetFailureMalformed, flows.PasswordResetFailureInvalidToken:
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, EndpointResetPassword, false, result.AccountID, ErrInvalidToken, nil)
		return ErrInvalidToken
	case flows.PasswordResetFailureHash:
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.logger.Error("password_hash_failed", e.logFields(ctx, EndpointResetPassword, result.AccountID, result.Err)...)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, EndpointResetPassword, false, result.AccountID, result.Err, nil)
		return result.Err
	default:
		e.metricInc(MetricPasswordResetConfirmFailure)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err := e.storeFailure(ctx, EndpointResetPassword, result.AccountID, result.Err)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, EndpointResetPassword, false, result.AccountID, err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, EndpointResetPassword, true, result.AccountID, nil, nil)
	e.logger.Info("password_reset_completed",
		zap.String("account_id", result.AccountID),
		zap.String("client_ip", ClientIPFromContext(ctx)),
	)
	return nil
}

func (e *Engine) passwordResetDeps() flows.PasswordResetDeps {
	deps := flows.PasswordResetDeps{
		ResetTTL: e.config.PasswordReset.ResetTTL,

		AccountByEmail: e.accountByEmail,
		AccountByID:    e.accountByID,
		UpdateAccount:  e.updateAccount,

		ParseSecret:  parseOpaqueSecret,
		IssueReset:   e.issueReset,
		CheckReset:   e.checkReset,
		ConsumeReset: e.consumeReset,
		RevokeAll:    e.revokeAllRefresh,

		HashPassword: e.passwords.Hash,
		Notify:       e.notifier.SendPasswordReset,
	}
	if e.config.PasswordReset.EnumerationDelay {
		deps.SleepEnumerationDelay = sleepEnumerationDelay
	}
	return deps
}

// sleepEnumerationDelay waits a random 20-40ms, or until ctx is done.
func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
