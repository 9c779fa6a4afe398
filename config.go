package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Config holds every engine setting. Build it from DefaultConfig and
// override fields; Builder.Build validates it once.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	PasswordReset     PasswordResetConfig
	PhoneVerification PhoneVerificationConfig
	RateLimit         RateLimitConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing and the token lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme and cost and the length policy.
type PasswordConfig struct {
	Scheme string // "argon2id" (default) or "bcrypt"

	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int

	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// PasswordResetConfig configures reset tokens.
type PasswordResetConfig struct {
	ResetTTL time.Duration
	// EnumerationDelay enables the random 20-40ms pad on forgot and reset.
	EnumerationDelay bool
}

// PhoneVerificationConfig configures one-time phone codes.
type PhoneVerificationConfig struct {
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// FailPolicy decides what the rate limiter does when no backend answers.
type FailPolicy string

const (
	// FailOpen admits the request and logs it. It is the default.
	FailOpen FailPolicy = "fail_open"
	// FailClosed rejects the request with ErrRateLimited.
	FailClosed FailPolicy = "fail_closed"
)

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Window time.Duration
	// Limits holds the allowed calls per Window per client for each endpoint.
	// A missing or non-positive entry disables limiting for that endpoint.
	Limits     map[Endpoint]int
	FailPolicy FailPolicy
	// ProbeInterval is how long the fallback serves after Redis fails.
	ProbeInterval time.Duration
	// BackendTimeout bounds each Redis call made by the limiter.
	BackendTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Signing keys are never
// defaulted.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(jwt.MethodEd25519),
		},
		Password: PasswordConfig{
			Scheme:         "argon2id",
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:         15 * time.Minute,
			EnumerationDelay: true,
		},
		PhoneVerification: PhoneVerificationConfig{
			CodeTTL:     10 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 5,
			RedisPrefix: "apv",
		},
		RateLimit: RateLimitConfig{
			Window:         60 * time.Second,
			Limits:         DefaultLimits(),
			FailPolicy:     FailOpen,
			ProbeInterval:  5 * time.Second,
			BackendTimeout: 500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		StoreTimeout: 3 * time.Second,
	}
}

// DefaultLimits returns the per-endpoint limits for a 60 second window.
func DefaultLimits() map[Endpoint]int {
	return map[Endpoint]int{
		EndpointLogin:          5,
		EndpointRegister:       3,
		EndpointForgotPassword: 1,
		EndpointRefresh:        10,
		EndpointResetPassword:  3,
		EndpointGeneral:        100,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Limits != nil {
		out.RateLimit.Limits = make(map[Endpoint]int, len(cfg.RateLimit.Limits))
		for k, v := range cfg.RateLimit.Limits {
			out.RateLimit.Limits[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}

	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	switch c.Password.Scheme {
	case "", "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 10 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 10 and 31")
		}
		if c.Password.MaxLength > 72 {
			return errors.New("Password MaxLength must be <= 72 with bcrypt")
		}
	default:
		return errors.New("Password Scheme must be 'argon2id' or 'bcrypt'")
	}

	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Password reset
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}

	// Phone verification
	if c.PhoneVerification.CodeTTL <= 0 {
		return errors.New("PhoneVerification CodeTTL must be > 0")
	}
	if c.PhoneVerification.CodeDigits < 6 || c.PhoneVerification.CodeDigits > 10 {
		return errors.New("PhoneVerification CodeDigits must be between 6 and 10")
	}
	if c.PhoneVerification.MaxAttempts <= 0 {
		return errors.New("PhoneVerification MaxAttempts must be > 0")
	}

	// Rate limiting
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.FailPolicy != FailOpen && c.RateLimit.FailPolicy != FailClosed {
		return errors.New("RateLimit FailPolicy must be 'fail_open' or 'fail_closed'")
	}
	for endpoint, limit := range c.RateLimit.Limits {
		if limit < 0 {
			return fmt.Errorf("RateLimit limit for %q must be >= 0", endpoint)
		}
	}
	if c.RateLimit.ProbeInterval < 0 {
		return errors.New("RateLimit ProbeInterval must be >= 0")
	}
	if c.RateLimit.BackendTimeout < 0 {
		return errors.New("RateLimit BackendTimeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.StoreTimeout <= 0 {
		return errors.New("StoreTimeout must be > 0")
	}

	return nil
}
