package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type phoneChallengeStore interface {
	Save(ctx context.Context, challenge *stores.PhoneChallenge, ttl time.Duration) error
	Consume(ctx context.Context, accountID string, providedHash [32]byte, maxAttempts int) (*stores.PhoneChallenge, error)
}

// Engine runs the authentication and session lifecycle. Build it with
// New().WithAccounts(...).Build(). It is safe for concurrent use and holds
// no per-request state.
type Engine struct {
	config Config

	accounts        store.AccountStore
	refreshTokens   store.RefreshTokenStore
	resetTokens     store.ResetTokenStore
	phoneChallenges phoneChallengeStore
	redis           redis.UniversalClient

	limiter    *rate.Limiter
	passwords  *password.Verifier
	timingHash string
	codec      *jwt.Codec
	notifier   Notifier

	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Close flushes pending audit events. Injected clients are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEndpoint breaks AuditDropped down by endpoint.
func (e *Engine) AuditDroppedByEndpoint() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEndpoint()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RateLimitDegraded reports whether the limiter is serving from its
// in-process fallback.
func (e *Engine) RateLimitDegraded() bool {
	if e == nil || e.limiter == nil {
		return false
	}
	return e.limiter.Health().Degraded
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.refreshTokens == nil || e.resetTokens == nil ||
		e.limiter == nil || e.codec == nil || e.passwords == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) onLimiterStateChange(degraded bool, cause error) {
	if degraded {
		e.logger.Warn("rate_limiter_degraded",
			zap.String("policy", string(e.config.RateLimit.FailPolicy)),
			zap.Error(cause),
		)
		return
	}
	e.logger.Info("rate_limiter_recovered")
}

func (e *Engine) logFields(ctx context.Context, endpoint Endpoint, accountID string, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("endpoint", string(endpoint)),
		zap.String("client_ip", ClientIPFromContext(ctx)),
	}
	if accountID != "" {
		fields = append(fields, zap.String("account_id", accountID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// storeFailure logs a backend error and converts it to ErrStoreUnavailable.
// The cause never reaches the caller's client.
func (e *Engine) storeFailure(ctx context.Context, endpoint Endpoint, accountID string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.Error("store_unavailable", e.logFields(ctx, endpoint, accountID, err)...)
	return storeUnavailable(err)
}

func (e *Engine) issueAccessToken(account store.Account) (string, error) {
	return e.codec.Issue(jwt.Claims{Subject: account.ID, Role: account.Role}, e.config.JWT.AccessTTL)
}

// issueSession signs an access token and replaces every refresh token of the
// account with a new one.
func (e *Engine) issueSession(ctx context.Context, account store.Account) (string, string, error) {
	access, err := e.issueAccessToken(account)
	if err != nil {
		return "", "", err
	}
	refresh, err := e.issueRefresh(ctx, account.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (e *Engine) newSession(account store.Account, access, refresh string) *Session {
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    e.config.JWT.AccessTTL,
		Account:      account,
	}
}

// authenticate resolves an access token to the stored, active account.
func (e *Engine) authenticate(ctx context.Context, endpoint Endpoint, accessToken string) (store.Account, error) {
	return e.validate(ctx, endpoint, accessToken, PolicyAuthenticated)
}

// validate resolves accessToken and checks the stored account against
// policy. Role and status are read from the store, not from the claims.
func (e *Engine) validate(ctx context.Context, endpoint Endpoint, accessToken string, policy Policy) (store.Account, error) {
	result := flows.RunValidate(ctx, accessToken, flows.ValidateDeps{
		ParseAccess: e.codec.Decode,
		AccountByID: e.accountByID,
		AllowRole: func(role string) bool {
			return policy.allowsRole(Role(role))
		},
		RequireVerifiedPhone: policy.RequireVerifiedPhone,
	})

	var denied error
	switch result.Failure {
	case flows.ValidateFailureNone:
		return result.Account, nil
	case flows.ValidateFailureUnauthorized:
		if ce := e.logger.Check(zap.DebugLevel, "access_token_rejected"); ce != nil {
			_, cause := e.codec.DecodeDetailed(accessToken)
			ce.Write(e.logFields(ctx, endpoint, "", cause)...)
		}
		return store.Account{}, ErrInvalidToken
	case flows.ValidateFailureAccountNotFound:
		return store.Account{}, ErrInvalidToken
	case flows.ValidateFailureInactive:
		return store.Account{}, ErrAccountInactive
	case flows.ValidateFailureRole:
		denied = ErrForbidden
	case flows.ValidateFailureUnverified:
		denied = ErrPhoneNotVerified
	default:
		return store.Account{}, e.storeFailure(ctx, endpoint, result.Claims.Subject, result.Err)
	}

	account := result.Account
	e.metricInc(MetricAuthorizeDenied)
	e.emitAudit(ctx, auditEventAuthorizeDenied, endpoint, false, account.ID, denied, func() map[string]string {
		return map[string]string{"role": account.Role}
	})
	return store.Account{}, denied
}

// CurrentUser returns the account behind accessToken.
func (e *Engine) CurrentUser(ctx context.Context, accessToken string) (store.Account, error) {
	if err := e.ready(); err != nil {
		return store.Account{}, err
	}
	if err := e.allow(ctx, EndpointGeneral); err != nil {
		return store.Account{}, err
	}

	start := time.Now()
	defer e.observe(MetricAuthorizeLatency, start)

	return e.authenticate(ctx, EndpointGeneral, accessToken)
}

// Authorize resolves accessToken and checks the account against policy.
// It is not rate limited; callers pair it with an endpoint operation.
func (e *Engine) Authorize(ctx context.Context, accessToken string, policy Policy) (store.Account, error) {
	if err := e.ready(); err != nil {
		return store.Account{}, err
	}

	start := time.Now()
	defer e.observe(MetricAuthorizeLatency, start)

	return e.validate(ctx, EndpointGeneral, accessToken, policy)
}

/*
====================================
HEALTH
====================================
*/

// Health pings every dependency. A failing account or token store makes the
// engine unhealthy; a failing Redis or a limiter on fallback only degrades
// it, because rate limiting continues in process.
func (e *Engine) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: HealthHealthy, Checks: map[string]HealthCheck{}}
	if e.ready() != nil {
		report.Status = HealthUnhealthy
		report.Checks["engine"] = HealthCheck{Status: HealthUnhealthy, Error: ErrEngineNotReady.Error()}
		return report
	}

	e.pingCheck(ctx, &report, "accounts", e.accounts, HealthUnhealthy)
	e.pingCheck(ctx, &report, "refresh_tokens", e.refreshTokens, HealthUnhealthy)
	e.pingCheck(ctx, &report, "reset_tokens", e.resetTokens, HealthUnhealthy)

	if e.redis != nil {
		pctx, cancel := e.storeContext(ctx)
		err := e.redis.Ping(pctx).Err()
		cancel()
		report.record("redis", HealthDegraded, err)
	}

	limiter := e.limiter.Health()
	if limiter.Degraded {
		cause := limiter.LastError
		if cause == "" {
			cause = "serving from fallback"
		}
		report.record("rate_limiter", HealthDegraded, errors.New(cause))
	} else {
		report.record("rate_limiter", HealthDegraded, nil)
	}

	for name, check := range report.Checks {
		if check.Error == "" {
			continue
		}
		e.logger.Warn("health_check_failed",
			zap.String("check", name),
			zap.String("status", string(check.Status)),
			zap.String("error", check.Error),
		)
	}
	return report
}

func (e *Engine) pingCheck(ctx context.Context, report *HealthReport, name string, target any, onFailure HealthStatus) {
	pinger, ok := target.(store.Pinger)
	if !ok {
		return
	}
	pctx, cancel := e.storeContext(ctx)
	defer cancel()
	report.record(name, onFailure, pinger.Ping(pctx))
}

func (r *HealthReport) record(name string, onFailure HealthStatus, err error) {
	if err == nil {
		r.Checks[name] = HealthCheck{Status: HealthHealthy}
		return
	}
	r.Checks[name] = HealthCheck{Status: onFailure, Error: err.Error()}
	if healthRank(onFailure) > healthRank(r.Status) {
		r.Status = onFailure
	}
}

func healthRank(s HealthStatus) int {
	switch s {
	case HealthUnhealthy:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}
