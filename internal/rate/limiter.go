package rate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Policy decides what happens when no backend can count a hit.
type Policy string

const (
	PolicyFailOpen   Policy = "fail_open"
	PolicyFailClosed Policy = "fail_closed"
)

// Source names what produced a Decision.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourcePolicy   Source = "policy"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultTimeout       = 500 * time.Millisecond
	keyPrefix            = "rl:"
)

// Backend counts hits for a key within a fixed window.
type Backend interface {
	// Incr records one hit and returns the count in the current window and
	// the time remaining until the window resets.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Config holds limiter tuning parameters.
type Config struct {
	Policy Policy
	// ProbeInterval is how long the fallback serves after a primary failure.
	ProbeInterval time.Duration
	// Timeout bounds each primary call.
	Timeout time.Duration
	// OnStateChange is invoked when the limiter enters or leaves degraded mode.
	OnStateChange func(degraded bool, cause error)
	Now           func() time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
	Source     Source
	Policy     Policy
	// Err carries the backend failure behind a SourcePolicy decision.
	Err error
}

// Health describes the limiter's current backend state.
type Health struct {
	Degraded  bool
	Since     time.Time
	LastError string
}

// Limiter enforces fixed-window limits over a primary and optional fallback
// backend.
type Limiter struct {
	primary  Backend
	fallback Backend
	config   Config

	mu            sync.Mutex
	degradedSince time.Time
	probeAt       time.Time
	lastErr       error
}

// New creates a Limiter. primary may be nil, in which case fallback is the
// only backend and the limiter never reports degradation.
func New(primary, fallback Backend, cfg Config) *Limiter {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFailOpen
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{primary: primary, fallback: fallback, config: cfg}
}

// Key builds the counter key for an endpoint and client identity.
func Key(endpoint, client string) string {
	if client == "" {
		client = "unknown"
	}
	return keyPrefix + endpoint + ":" + client
}

// Allow records a hit for key and reports whether it is within limit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	var cause error

	if l.primary != nil && l.primaryAvailable() {
		pctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		count, ttl, err := l.primary.Incr(pctx, key, window)
		cancel()
		if err == nil {
			l.restore()
			return decide(count, ttl, limit, window, SourcePrimary)
		}
		cause = err
		l.degrade(err)
	}

	if l.fallback != nil {
		count, ttl, err := l.fallback.Incr(ctx, key, window)
		if err == nil {
			source := SourceFallback
			if l.primary == nil {
				source = SourcePrimary
			}
			return decide(count, ttl, limit, window, source)
		}
		cause = errors.Join(cause, err)
	}

	if cause == nil {
		cause = ErrBackendUnavailable
	}

	return Decision{
		Allowed: l.config.Policy == PolicyFailOpen,
		Limit:   limit,
		Source:  SourcePolicy,
		Policy:  l.config.Policy,
		Err:     cause,
	}
}

// Health reports whether the primary backend is currently bypassed.
func (l *Limiter) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.degradedSince.IsZero() {
		return Health{}
	}
	h := Health{Degraded: true, Since: l.degradedSince}
	if l.lastErr != nil {
		h.LastError = l.lastErr.Error()
	}
	return h
}

// Policy returns the configured failure policy.
func (l *Limiter) Policy() Policy {
	return l.config.Policy
}

func (l *Limiter) primaryAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.degradedSince.IsZero() {
		return true
	}
	now := l.config.Now()
	if now.Before(l.probeAt) {
		return false
	}
	// One caller probes; the rest keep using the fallback until it reports.
	l.probeAt = now.Add(l.config.ProbeInterval)
	return true
}

func (l *Limiter) degrade(err error) {
	l.mu.Lock()
	now := l.config.Now()
	entered := l.degradedSince.IsZero()
	if entered {
		l.degradedSince = now
	}
	l.probeAt = now.Add(l.config.ProbeInterval)
	l.lastErr = err
	l.mu.Unlock()

	if entered && l.config.OnStateChange != nil {
		l.config.OnStateChange(true, err)
	}
}

func (l *Limiter) restore() {
	l.mu.Lock()
	left := !l.degradedSince.IsZero()
	l.degradedSince = time.Time{}
	l.probeAt = time.Time{}
	l.lastErr = nil
	l.mu.Unlock()

	if left && l.config.OnStateChange != nil {
		l.config.OnStateChange(false, nil)
	}
}

func decide(count int64, ttl time.Duration, limit int, window time.Duration, source Source) Decision {
	d := Decision{
		Allowed: count <= int64(limit),
		Count:   count,
		Limit:   limit,
		Source:  source,
	}
	if !d.Allowed {
		if ttl <= 0 || ttl > window {
			ttl = window
		}
		d.RetryAfter = ttl
	}
	return d
}
