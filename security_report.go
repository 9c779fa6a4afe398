package authcore

import (
	"github.com/MrEthical07/authcore/internal/security"
	"github.com/MrEthical07/authcore/store/memory"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordPostureReport lists the active password hashing parameters.
type PasswordPostureReport = security.PasswordReport

// SecurityReport summarizes the resolved configuration. It is safe to log:
// no key material is included.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	_, localRefresh := e.refreshTokens.(*memory.RefreshTokens)

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		Issuer:           e.config.JWT.Issuer,
		Audience:         e.config.JWT.Audience,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Scheme:      e.config.Password.Scheme,
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			BcryptCost:  e.config.Password.BcryptCost,
			MinLength:   e.config.Password.MinLength,
		},
		RedisConfigured:      e.redis != nil,
		FailClosed:           e.config.RateLimit.FailPolicy == FailClosed,
		LoginLimit:           e.config.RateLimit.Limits[EndpointLogin],
		EnumerationDelay:     e.config.PasswordReset.EnumerationDelay,
		PhoneCodeMaxAttempts: e.config.PhoneVerification.MaxAttempts,
		AuditEnabled:         e.config.Audit.Enabled,
		UpgradeOnLogin:       e.config.Password.UpgradeOnLogin,
		CustomTokenStores:    e.refreshTokens != nil && !localRefresh,
	})
}
