package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakyAccounts fails every lookup and ping while down is set.
type flakyAccounts struct {
	*memory.Accounts
	down bool
}

var errBackendDown = errors.New("connection refused")

func (f *flakyAccounts) ByUsername(ctx context.Context, username string) (store.Account, error) {
	if f.down {
		return store.Account{}, errBackendDown
	}
	return f.Accounts.ByUsername(ctx, username)
}

func (f *flakyAccounts) Ping(ctx context.Context) error {
	if f.down {
		return errBackendDown
	}
	return f.Accounts.Ping(ctx)
}

func drainAudit(sink *ChannelSink) []AuditEvent {
	var events []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestAuditEventsCarryOutcome(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, func(b *Builder) {
		b.config.Audit.Enabled = true
		b.config.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	})
	s := env.register(t, "alice")
	ctx := WithClientIP(context.Background(), "192.0.2.44")
	if _, err := env.engine.Login(ctx, "alice", "wrong-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	env.engine.Close()

	events := drainAudit(sink)
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d: %+v", len(events), events)
	}
	if events[0].EventType != "register_success" || !events[0].Success || events[0].AccountID != s.Account.ID {
		t.Fatalf("unexpected register event: %+v", events[0])
	}
	failed := events[1]
	if failed.EventType != "login_failure" || failed.Success {
		t.Fatalf("unexpected login event: %+v", failed)
	}
	if failed.Error != "invalid_credentials" || failed.IP != "192.0.2.44" || failed.Endpoint != "login" {
		t.Fatalf("unexpected login event fields: %+v", failed)
	}
	if failed.Timestamp.IsZero() {
		t.Fatal("expected event timestamp")
	}
}

// gateSink holds the first event until release is closed.
type gateSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateSink) open() { g.once.Do(func() { close(g.release) }) }

func (g *gateSink) Emit(context.Context, AuditEvent) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
}

func TestAuditDropsAreCountedPerEndpoint(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := &gateSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnv(t, func(b *Builder) {
		b.config.Audit.Enabled = true
		b.config.Audit.BufferSize = 1
		b.config.Audit.DropIfFull = true
		b.WithAuditSink(sink).WithLogger(zap.New(core))
	})
	t.Cleanup(sink.open)

	env.register(t, "dora")
	<-sink.started
	env.login(t, "dora")
	env.login(t, "dora")

	if got := env.engine.AuditDroppedByEndpoint()["login"]; got != 1 {
		t.Fatalf("expected one dropped login event, got %d", got)
	}
	dropped := logs.FilterMessage("audit_event_dropped").All()
	if len(dropped) != 1 || dropped[0].ContextMap()["endpoint"] != "login" {
		t.Fatalf("expected drop warning for login, got %+v", dropped)
	}

	sink.open()
	env.engine.Close()
	if env.engine.AuditDropped() != 1 {
		t.Fatalf("expected total of one drop, got %d", env.engine.AuditDropped())
	}
}

func TestCriticalAuditEvents(t *testing.T) {
	cases := []struct {
		event AuditEvent
		want  bool
	}{
		{AuditEvent{EventType: auditEventRefreshReuseDetected}, true},
		{AuditEvent{EventType: auditEventRoleChange, Success: true}, true},
		{AuditEvent{EventType: auditEventPasswordResetConfirm, Success: true}, true},
		{AuditEvent{EventType: auditEventPasswordResetConfirm}, false},
		{AuditEvent{EventType: auditEventLoginSuccess, Success: true}, false},
	}
	for _, tc := range cases {
		if got := criticalAuditEvent(tc.event); got != tc.want {
			t.Fatalf("%s success=%v: expected %v, got %v", tc.event.EventType, tc.event.Success, tc.want, got)
		}
	}
}

func TestRefreshReuseIsReported(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	env := newTestEnv(t, func(b *Builder) {
		b.WithLogger(zap.New(core))
	})
	s := env.register(t, "bob")

	if _, err := env.engine.Refresh(env.freshCtx(), s.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := env.engine.Refresh(env.freshCtx(), s.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected replayed refresh to fail, got %v", err)
	}

	if got := logs.FilterMessage("refresh_reuse_detected").Len(); got != 1 {
		t.Fatalf("expected one reuse warning, got %d", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected reuse counted once, got %d", got)
	}
}

func TestStoreFailureIsLoggedNotLeaked(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	accounts := &flakyAccounts{Accounts: memory.NewAccounts()}
	env := newTestEnv(t, func(b *Builder) {
		b.WithAccounts(accounts).WithLogger(zap.New(core))
	})
	accounts.down = true

	_, err := env.engine.Login(env.freshCtx(), "alice", testPassword)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("backend failure must not look like bad credentials")
	}

	entries := logs.FilterMessage("store_unavailable").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error log, got %+v", entries)
	}
	if entries[0].ContextMap()["error"] != errBackendDown.Error() {
		t.Fatalf("expected cause in log, got %v", entries[0].ContextMap())
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricStoreUnavailable]; got != 1 {
		t.Fatalf("expected store failure counted, got %d", got)
	}

	report := env.engine.Health(context.Background())
	if report.Status != HealthUnhealthy || report.Checks["accounts"].Error == "" {
		t.Fatalf("expected unhealthy report, got %+v", report)
	}
	checks := logs.FilterMessage("health_check_failed").All()
	if len(checks) != 1 || checks[0].ContextMap()["check"] != "accounts" || checks[0].ContextMap()["error"] != errBackendDown.Error() {
		t.Fatalf("expected failing check logged with cause, got %+v", checks)
	}

	accounts.down = false
	if report := env.engine.Health(context.Background()); report.Status != HealthHealthy {
		t.Fatalf("expected recovery, got %+v", report)
	}
}

func TestLatencyHistogramsObserved(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "carol")
	env.login(t, "carol")
	if _, err := env.engine.CurrentUser(env.freshCtx(), s.AccessToken); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	for _, id := range []MetricID{MetricLoginLatency, MetricAuthorizeLatency} {
		var total uint64
		for _, n := range snap.Histograms[id] {
			total += n
		}
		if total != 1 {
			t.Fatalf("histogram %d: expected 1 observation, got %d", id, total)
		}
	}
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
}

func TestBuilderRejectsInvalidSetup(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected missing account store to fail")
	}

	cfg := testConfig()
	cfg.JWT.PrivateKey = []byte("short")
	if _, err := New().WithConfig(cfg).WithAccounts(memory.NewAccounts()).Build(); err == nil {
		t.Fatal("expected short hs256 key to fail")
	}

	b := New().WithConfig(testConfig()).WithAccounts(memory.NewAccounts())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected reused builder to fail")
	}

	var nilEngine *Engine
	if _, err := nilEngine.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestSecurityReportReflectsPosture(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		b.config.JWT.Issuer = "authcore"
		b.config.RateLimit.FailPolicy = FailClosed
	})

	report := env.engine.SecurityReport()
	if report.SigningAlgorithm != "hs256" || !report.AudienceOrIssuerChecked {
		t.Fatalf("unexpected signing posture: %+v", report)
	}
	if report.RateLimitBackend != "memory" || !report.RateLimitFailClosed || report.LoginLimitPerWindow != 5 {
		t.Fatalf("unexpected rate limit posture: %+v", report)
	}
	if report.SharedTokenStore {
		t.Fatal("memory refresh store must not be reported as shared")
	}
	if report.Password.Scheme != "argon2id" || report.PhoneCodeMaxAttempts != 5 {
		t.Fatalf("unexpected credential posture: %+v", report)
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got.SigningAlgorithm != "" {
		t.Fatalf("expected empty report, got %+v", got)
	}
}
