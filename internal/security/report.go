package security

import "time"

type PasswordReport struct {
	Scheme      string
	Memory      uint32
	Time        uint32
	Parallelism uint8
	BcryptCost  int
	MinLength   int
}

type Report struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Password                PasswordReport
	RateLimitBackend        string
	RateLimitFailClosed     bool
	LoginLimitPerWindow     int
	EnumerationDelay        bool
	PhoneCodeMaxAttempts    int
	AuditEnabled            bool
	PasswordUpgradeOnLogin  bool
	SharedTokenStore        bool
	AudienceOrIssuerChecked bool
}

type ReportInput struct {
	SigningAlgorithm     string
	Issuer               string
	Audience             string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Password             PasswordReport
	RedisConfigured      bool
	FailClosed           bool
	LoginLimit           int
	EnumerationDelay     bool
	PhoneCodeMaxAttempts int
	AuditEnabled         bool
	UpgradeOnLogin       bool
	CustomTokenStores    bool
}

func BuildReport(input ReportInput) Report {
	backend := "memory"
	if input.RedisConfigured {
		backend = "redis"
	}

	return Report{
		SigningAlgorithm:        input.SigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		RefreshTTL:              input.RefreshTTL,
		Password:                input.Password,
		RateLimitBackend:        backend,
		RateLimitFailClosed:     input.FailClosed,
		LoginLimitPerWindow:     input.LoginLimit,
		EnumerationDelay:        input.EnumerationDelay,
		PhoneCodeMaxAttempts:    input.PhoneCodeMaxAttempts,
		AuditEnabled:            input.AuditEnabled,
		PasswordUpgradeOnLogin:  input.UpgradeOnLogin,
		SharedTokenStore:        input.RedisConfigured || input.CustomTokenStores,
		AudienceOrIssuerChecked: input.Issuer != "" || input.Audience != "",
	}
}
