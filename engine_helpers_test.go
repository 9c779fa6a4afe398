package authcore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	resets map[string][]string
	codes  map[string][]string
	err    error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		resets: make(map[string][]string),
		codes:  make(map[string][]string),
	}
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, account store.Account, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets[account.ID] = append(n.resets[account.ID], secret)
	return nil
}

func (n *recordingNotifier) SendPhoneCode(_ context.Context, account store.Account, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes[account.ID] = append(n.codes[account.ID], code)
	return nil
}

func (n *recordingNotifier) lastReset(accountID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	list := n.resets[accountID]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

func (n *recordingNotifier) lastCode(accountID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	list := n.codes[accountID]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

func (n *recordingNotifier) resetCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, list := range n.resets {
		total += len(list)
	}
	return total
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-signing-key-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.PasswordReset.EnumerationDelay = false
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	accounts *memory.Accounts
	refresh  *memory.RefreshTokens
	notifier *recordingNotifier
	clock    *testClock
	ips      atomic.Uint32
}

func newTestEnv(t *testing.T, opts ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    newTestClock(),
		notifier: newRecordingNotifier(),
	}
	env.accounts = memory.NewAccounts(memory.WithClock(env.clock.Now))
	env.refresh = memory.NewRefreshTokens(memory.WithClock(env.clock.Now))

	b := New().
		WithConfig(testConfig()).
		WithAccounts(env.accounts).
		WithRefreshTokens(env.refresh).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// freshCtx returns a context with a client IP no other call has used, so
// per-client limits never interfere across helpers.
func (env *testEnv) freshCtx() context.Context {
	n := env.ips.Add(1)
	return WithClientIP(context.Background(), fmt.Sprintf("198.51.%d.%d", n/250, n%250+1))
}

func (env *testEnv) register(t *testing.T, username string) *Session {
	t.Helper()

	s, err := env.engine.Register(env.freshCtx(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		FullName: "Test " + username,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", username, err)
	}
	return s
}

func (env *testEnv) login(t *testing.T, username string) *Session {
	t.Helper()

	s, err := env.engine.Login(env.freshCtx(), username, testPassword)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", username, err)
	}
	return s
}

// createAdmin seeds an administrator directly in the store and signs it in.
func (env *testEnv) createAdmin(t *testing.T) *Session {
	t.Helper()

	hash, err := env.engine.passwords.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	_, err = env.accounts.Create(context.Background(), store.Account{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		Role:         string(RoleAdmin),
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed admin failed: %v", err)
	}
	return env.login(t, "root")
}
