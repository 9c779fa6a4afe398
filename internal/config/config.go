// Package config loads the authd process configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string     `yaml:"env" env:"AUTH_ENV" env-default:"local"`
	LogLevel  string     `yaml:"log_level" env:"AUTH_LOG_LEVEL" env-default:"info"`
	HTTP      HTTPServer `yaml:"http_server"`
	DB        DB         `yaml:"db"`
	Redis     Redis      `yaml:"redis"`
	JWT       JWT        `yaml:"jwt"`
	Password  Password   `yaml:"password"`
	RateLimit RateLimit  `yaml:"rate_limit"`
	Tokens    Tokens     `yaml:"tokens"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"AUTH_HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
	MetricsEnabled  bool          `yaml:"metrics_enabled" env:"AUTH_METRICS_ENABLED" env-default:"true"`
}

// DB selects the account store. An empty URL keeps accounts in memory.
type DB struct {
	URL         string `yaml:"url" env:"AUTH_DB_URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTH_DB_AUTO_MIGRATE" env-default:"false"`
}

// Redis backs the rate limiter and token stores. An empty address runs
// both in process.
type Redis struct {
	Address  string `yaml:"address" env:"AUTH_REDIS_ADDRESS"`
	Password string `yaml:"password" env:"AUTH_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"AUTH_REDIS_DB" env-default:"0"`
}

type JWT struct {
	SigningMethod  string        `yaml:"signing_method" env:"AUTH_JWT_SIGNING_METHOD" env-default:"ed25519"`
	Secret         string        `yaml:"secret" env:"AUTH_JWT_SECRET"`
	PrivateKeyFile string        `yaml:"private_key_file" env:"AUTH_JWT_PRIVATE_KEY_FILE"`
	PublicKeyFile  string        `yaml:"public_key_file" env:"AUTH_JWT_PUBLIC_KEY_FILE"`
	Issuer         string        `yaml:"issuer" env:"AUTH_JWT_ISSUER"`
	Audience       string        `yaml:"audience" env:"AUTH_JWT_AUDIENCE"`
	KeyID          string        `yaml:"key_id" env:"AUTH_JWT_KEY_ID"`
	AccessTTL      time.Duration `yaml:"access_ttl" env-default:"30m"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl" env-default:"168h"`
	Leeway         time.Duration `yaml:"leeway" env-default:"0s"`
}

type Password struct {
	Scheme     string `yaml:"scheme" env:"AUTH_PASSWORD_SCHEME" env-default:"argon2id"`
	BcryptCost int    `yaml:"bcrypt_cost" env-default:"12"`
	MinLength  int    `yaml:"min_length" env-default:"8"`
	MaxLength  int    `yaml:"max_length" env-default:"128"`
}

type RateLimit struct {
	Window         time.Duration `yaml:"window" env-default:"60s"`
	FailPolicy     string        `yaml:"fail_policy" env:"AUTH_RATE_LIMIT_FAIL_POLICY" env-default:"fail_open"`
	Login          int           `yaml:"login" env-default:"5"`
	Register       int           `yaml:"register" env-default:"3"`
	ForgotPassword int           `yaml:"forgot_password" env-default:"1"`
	Refresh        int           `yaml:"refresh" env-default:"10"`
	ResetPassword  int           `yaml:"reset_password" env-default:"3"`
	General        int           `yaml:"general" env-default:"100"`
}

type Tokens struct {
	ResetTTL         time.Duration `yaml:"reset_ttl" env-default:"15m"`
	PhoneCodeTTL     time.Duration `yaml:"phone_code_ttl" env-default:"10m"`
	PhoneMaxAttempts int           `yaml:"phone_max_attempts" env-default:"5"`
	StoreTimeout     time.Duration `yaml:"store_timeout" env-default:"3s"`
}

// MustLoad is Load for process startup.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load reads path when it is set, then applies the environment. An empty
// path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether logs should be machine readable.
func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// ToEngineConfig converts the file settings into an authcore.Config,
// reading key files as needed. The result still goes through
// authcore.Config.Validate when the engine is built.
func (c *Config) ToEngineConfig() (authcore.Config, error) {
	out := authcore.DefaultConfig()

	out.JWT.SigningMethod = c.JWT.SigningMethod
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.KeyID = c.JWT.KeyID
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL
	out.JWT.Leeway = c.JWT.Leeway

	switch c.JWT.SigningMethod {
	case "hs256":
		if c.JWT.Secret == "" {
			return authcore.Config{}, errors.New("jwt.secret is required for hs256")
		}
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	default:
		if c.JWT.PrivateKeyFile == "" {
			return authcore.Config{}, errors.New("jwt.private_key_file is required for ed25519")
		}
		priv, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return authcore.Config{}, fmt.Errorf("read jwt private key: %w", err)
		}
		out.JWT.PrivateKey = priv
		if c.JWT.PublicKeyFile != "" {
			pub, err := os.ReadFile(c.JWT.PublicKeyFile)
			if err != nil {
				return authcore.Config{}, fmt.Errorf("read jwt public key: %w", err)
			}
			out.JWT.PublicKey = pub
		}
	}

	out.Password.Scheme = c.Password.Scheme
	out.Password.BcryptCost = c.Password.BcryptCost
	out.Password.MinLength = c.Password.MinLength
	out.Password.MaxLength = c.Password.MaxLength

	out.RateLimit.Window = c.RateLimit.Window
	out.RateLimit.FailPolicy = authcore.FailPolicy(c.RateLimit.FailPolicy)
	out.RateLimit.Limits = map[authcore.Endpoint]int{
		authcore.EndpointLogin:          c.RateLimit.Login,
		authcore.EndpointRegister:       c.RateLimit.Register,
		authcore.EndpointForgotPassword: c.RateLimit.ForgotPassword,
		authcore.EndpointRefresh:        c.RateLimit.Refresh,
		authcore.EndpointResetPassword:  c.RateLimit.ResetPassword,
		authcore.EndpointGeneral:        c.RateLimit.General,
	}

	out.PasswordReset.ResetTTL = c.Tokens.ResetTTL
	out.PhoneVerification.CodeTTL = c.Tokens.PhoneCodeTTL
	out.PhoneVerification.MaxAttempts = c.Tokens.PhoneMaxAttempts
	out.StoreTimeout = c.Tokens.StoreTimeout

	return out, out.Validate()
}
