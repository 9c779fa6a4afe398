package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventRegisterDuplicate        = "register_duplicate"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPhoneVerificationRequest = "phone_verification_request"
	auditEventPhoneVerificationConfirm = "phone_verification_confirm"
	auditEventProfileUpdate            = "profile_update"
	auditEventAccountStatusChange      = "account_status_change"
	auditEventRoleChange               = "role_change"
	auditEventAuthorizeDenied          = "authorize_denied"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
	auditEventAccountProvisioned       = "account_provisioned"
)

// criticalAuditEvent reports events that wait for dispatcher buffer space
// even when Audit.DropIfFull is set.
func criticalAuditEvent(ev AuditEvent) bool {
	switch ev.EventType {
	case auditEventRefreshReuseDetected,
		auditEventAccountStatusChange,
		auditEventRoleChange,
		auditEventAccountProvisioned:
		return true
	case auditEventPasswordResetConfirm:
		return ev.Success
	}
	return false
}

// AuditErrorCode is the stable, client-safe reason recorded on failed
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive     AuditErrorCode = "account_inactive"
	auditErrAccountNotFound     AuditErrorCode = "account_not_found"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrRefreshReuse        AuditErrorCode = "refresh_reuse"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrForbidden           AuditErrorCode = "forbidden"
	auditErrPhoneNotVerified    AuditErrorCode = "phone_not_verified"
	auditErrVerificationInvalid AuditErrorCode = "verification_invalid"
	auditErrInvalidInput        AuditErrorCode = "invalid_input"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	endpoint Endpoint,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Endpoint:  string(endpoint),
		AccountID: accountID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, store.ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, store.ErrTokenReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrPhoneNotVerified):
		return auditErrPhoneNotVerified
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrVerificationInvalid
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, store.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
