package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/store"
)

var (
	errNoPhone              = errors.New("phone: account has no phone number")
	errPhoneAlreadyVerified = errors.New("phone: already verified")
)

// RequestPhoneVerification sends a one-time code to the caller's phone
// number. A new request replaces any pending code.
func (e *Engine) RequestPhoneVerification(ctx context.Context, accessToken string) error {
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

	result := flows.RunRequestPhoneVerification(ctx, account, e.phoneVerificationDeps())

	switch result.Failure {
	case flows.PhoneVerificationFailureNone:
	case flows.PhoneVerificationFailureNoPhone:
		err = invalidInput(errNoPhone)
	case flows.PhoneVerificationFailureAlreadyVerified:
		err = invalidInput(errPhoneAlreadyVerified)
	case flows.PhoneVerificationFailureGenerate:
		e.logger.Error("phone_code_generation_failed", e.logFields(ctx, EndpointGeneral, account.ID, result.Err)...)
		err = result.Err
	default:
		err = e.storeFailure(ctx, EndpointGeneral, account.ID, result.Err)
	}
	if err != nil {
		e.emitAudit(ctx, auditEventPhoneVerificationRequest, EndpointGeneral, false, account.ID, err, nil)
		return err
	}

	e.metricInc(MetricPhoneVerificationRequest)
	e.emitAudit(ctx, auditEventPhoneVerificationRequest, EndpointGeneral, true, account.ID, nil, nil)
	return nil
}

// ConfirmPhoneVerification checks code against the pending challenge and
// marks the caller's phone verified. Wrong, expired and exhausted codes
// return ErrVerificationInvalid. Confirming an already verified phone is a
// no-op.
func (e *Engine) ConfirmPhoneVerification(ctx context.Context, accessToken, code string) (store.Account, error) {
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

	result := flows.RunConfirmPhoneVerification(ctx, account, code, e.phoneVerificationDeps())

	switch result.Failure {
	case flows.PhoneVerificationFailureNone:
	case flows.PhoneVerificationFailureMalformed, flows.PhoneVerificationFailurePhoneChanged:
		err = ErrVerificationInvalid
	case flows.PhoneVerificationFailureConsume:
		if isChallengeRejection(result.Err) {
			err = ErrVerificationInvalid
		} else {
			err = e.storeFailure(ctx, EndpointGeneral, account.ID, result.Err)
		}
	default:
		err = e.storeFailure(ctx, EndpointGeneral, account.ID, result.Err)
	}
	if err != nil {
		e.metricInc(MetricPhoneVerificationFailure)
		e.emitAudit(ctx, auditEventPhoneVerificationConfirm, EndpointGeneral, false, account.ID, err, nil)
		return store.Account{}, err
	}

	e.metricInc(MetricPhoneVerificationSuccess)
	e.emitAudit(ctx, auditEventPhoneVerificationConfirm, EndpointGeneral, true, account.ID, nil, nil)
	return result.Account, nil
}

func isChallengeRejection(err error) bool {
	return errors.Is(err, stores.ErrPhoneChallengeNotFound) ||
		errors.Is(err, stores.ErrPhoneCodeMismatch) ||
		errors.Is(err, stores.ErrPhoneAttemptsExceeded)
}

func (e *Engine) phoneVerificationDeps() flows.PhoneVerificationDeps {
	return flows.PhoneVerificationDeps{
		CodeTTL:     e.config.PhoneVerification.CodeTTL,
		CodeDigits:  e.config.PhoneVerification.CodeDigits,
		MaxAttempts: e.config.PhoneVerification.MaxAttempts,

		GenerateCode: internal.NewOTP,
		HashCode:     internal.HashCode,
		ValidCode: func(code string, digits int) bool {
			return len(code) == digits && internal.IsNumeric(code)
		},

		SaveChallenge:    e.savePhoneChallenge,
		ConsumeChallenge: e.consumePhoneChallenge,

		UpdateAccount: e.updateAccount,
		Notify:        e.notifier.SendPhoneCode,
	}
}
