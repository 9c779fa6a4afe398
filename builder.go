package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const timingEqualizerInput = "authcore-timing-equalizer"

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts      store.AccountStore
	refreshTokens store.RefreshTokenStore
	resetTokens   store.ResetTokenStore

	notifier  Notifier
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis injects the Redis client used by the rate limiter, the phone
// challenge store and, unless others are supplied, the token stores. The
// engine never closes it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts sets the account store. It is required.
func (b *Builder) WithAccounts(s store.AccountStore) *Builder {
	b.accounts = s
	return b
}

// WithRefreshTokens sets the refresh token store.
func (b *Builder) WithRefreshTokens(s store.RefreshTokenStore) *Builder {
	b.refreshTokens = s
	return b
}

// WithResetTokens sets the password-reset token store.
func (b *Builder) WithResetTokens(s store.ResetTokenStore) *Builder {
	b.resetTokens = s
	return b
}

// WithNotifier sets the delivery channel for reset secrets and phone codes.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source of the engine and of the stores the
// builder creates itself.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. Token stores that
// were not supplied are backed by Redis when a client is set, and by memory
// otherwise.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		notifier: notifier,
		logger:   logger,
		now:      now,
		redis:    b.redis,
	}

	// -------- TOKEN STORES --------
	engine.refreshTokens = b.refreshTokens
	engine.resetTokens = b.resetTokens
	if b.redis != nil {
		if engine.refreshTokens == nil {
			engine.refreshTokens = redisstore.NewRefreshTokens(b.redis, redisstore.WithClock(now))
		}
		if engine.resetTokens == nil {
			engine.resetTokens = redisstore.NewResetTokens(b.redis, redisstore.WithClock(now))
		}
		engine.phoneChallenges = stores.NewPhoneVerificationStore(b.redis, cfg.PhoneVerification.RedisPrefix)
	} else {
		if engine.refreshTokens == nil {
			engine.refreshTokens = memory.NewRefreshTokens(memory.WithClock(now))
		}
		if engine.resetTokens == nil {
			engine.resetTokens = memory.NewResetTokens(memory.WithClock(now))
		}
		engine.phoneChallenges = stores.NewMemoryPhoneVerificationStore(now)
	}

	// -------- RATE LIMITER --------
	var primary rate.Backend
	if b.redis != nil {
		primary = rate.NewRedisBackend(b.redis)
	}
	policy := rate.PolicyFailOpen
	if cfg.RateLimit.FailPolicy == FailClosed {
		policy = rate.PolicyFailClosed
	}
	engine.limiter = rate.New(primary, rate.NewMemoryBackend(now), rate.Config{
		Policy:        policy,
		ProbeInterval: cfg.RateLimit.ProbeInterval,
		Timeout:       cfg.RateLimit.BackendTimeout,
		OnStateChange: engine.onLimiterStateChange,
		Now:           now,
	})

	// -------- CREDENTIALS --------
	verifier, err := password.New(password.Config{
		Scheme:     cfg.Password.Scheme,
		BcryptCost: cfg.Password.BcryptCost,
		Argon2: password.Argon2Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = verifier

	timingHash, err := verifier.Hash(timingEqualizerInput)
	if err != nil {
		return nil, err
	}
	engine.timingHash = timingHash

	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	// -------- OBSERVABILITY --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   criticalAuditEvent,
		OnDrop: func(ev audit.Event) {
			logger.Warn("audit_event_dropped",
				zap.String("event_type", ev.EventType),
				zap.String("endpoint", ev.Endpoint),
				zap.String("account_id", ev.AccountID),
			)
		},
	}, sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
