package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

func TestAliceScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	registered, err := env.engine.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if registered.TokenType != TokenTypeBearer || registered.ExpiresIn != 30*time.Minute {
		t.Fatalf("unexpected session shape: %+v", registered)
	}

	first, err := env.engine.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if first.AccessToken == "" || first.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}

	bad, err := env.engine.Login(ctx, "alice", "wrong-password-123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if bad != nil {
		t.Fatal("failed login must not issue tokens")
	}

	second, err := env.engine.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected superseded refresh to fail, got %v", err)
	}

	refreshed, err := env.engine.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := env.engine.LogoutAll(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	for _, secret := range []string{registered.RefreshToken, first.RefreshToken, second.RefreshToken, refreshed.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, secret); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected refresh after logout-all to fail, got %v", err)
		}
	}
}

func TestLoginRevokesPreviousRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "bob")

	for i := 0; i < 3; i++ {
		env.login(t, "bob")
		if got := env.refresh.ActiveCount(s.Account.ID); got != 1 {
			t.Fatalf("expected exactly one live refresh token, got %d", got)
		}
	}
}

func TestLoginUnknownUserAndWrongPasswordMatch(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "carol")

	_, errUnknown := env.engine.Login(env.freshCtx(), "nobody", testPassword)
	_, errWrong := env.engine.Login(env.freshCtx(), "carol", "not-the-password")
	_, errEmpty := env.engine.Login(env.freshCtx(), "carol", "")

	for _, err := range []error{errUnknown, errWrong, errEmpty} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("unknown user and wrong password must be indistinguishable: %q vs %q", errUnknown, errWrong)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "dave")

	account := s.Account
	account.Active = false
	if _, err := env.accounts.Update(context.Background(), account); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	if _, err := env.engine.Login(env.freshCtx(), "dave", testPassword); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if _, err := env.engine.Login(env.freshCtx(), "dave", "wrong-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password on inactive account must stay ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Refresh(env.freshCtx(), s.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh of inactive account to fail, got %v", err)
	}
	if got := env.refresh.ActiveCount(s.Account.ID); got != 0 {
		t.Fatalf("expected refresh tokens revoked for inactive account, got %d live", got)
	}
}

func TestRefreshRejectsMalformedAndExpired(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "erin")

	for _, secret := range []string{"", "short", s.AccessToken} {
		if _, err := env.engine.Refresh(env.freshCtx(), secret); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", secret, err)
		}
	}

	env.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := env.engine.Refresh(env.freshCtx(), s.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh to fail, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		b.config.RateLimit.Limits[EndpointRefresh] = 0
	})
	s := env.register(t, "frank")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), s.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "gina")

	if _, err := env.engine.CurrentUser(env.freshCtx(), s.AccessToken); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}

	env.clock.Advance(31 * time.Minute)
	if _, err := env.engine.CurrentUser(env.freshCtx(), s.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
}

func TestLogoutOnlyRevokesOwnToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	if err := env.engine.Logout(env.freshCtx(), alice.AccessToken, bob.RefreshToken); err != nil {
		t.Fatalf("Logout with foreign token must succeed, got %v", err)
	}
	if _, err := env.engine.Refresh(env.freshCtx(), bob.RefreshToken); err != nil {
		t.Fatalf("foreign token must survive another user's logout: %v", err)
	}

	if err := env.engine.Logout(env.freshCtx(), alice.AccessToken, alice.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.Refresh(env.freshCtx(), alice.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected logged out token to fail, got %v", err)
	}

	// Idempotent.
	if err := env.engine.Logout(env.freshCtx(), alice.AccessToken, alice.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if err := env.engine.Logout(env.freshCtx(), "not-a-jwt", alice.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for bad access token, got %v", err)
	}
}

func TestRegisterConflictsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "henry")

	_, err := env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "HENRY",
		Email:    "other@example.com",
		Password: testPassword,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != store.FieldUsername {
		t.Fatalf("expected username conflict, got %v", err)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatal("ConflictError must match ErrConflict")
	}

	_, err = env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "henry2",
		Email:    " Henry@Example.com ",
		Password: testPassword,
	})
	if !errors.As(err, &conflict) || conflict.Field != store.FieldEmail {
		t.Fatalf("expected email conflict, got %v", err)
	}

	invalid := []RegisterInput{
		{Username: "ab", Email: "ab@example.com", Password: testPassword},
		{Username: "bad name", Email: "bad@example.com", Password: testPassword},
		{Username: "ivan", Email: "not-an-email", Password: testPassword},
		{Username: "ivan", Email: "ivan@example.com", Password: "short"},
		{Username: "ivan", Email: "ivan@example.com", Password: testPassword, Phone: "12"},
	}
	for _, in := range invalid {
		if _, err := env.engine.Register(env.freshCtx(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
}

func TestRegisterNormalizesPhone(t *testing.T) {
	env := newTestEnv(t)

	s, err := env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "judy",
		Email:    "judy@example.com",
		Password: testPassword,
		Phone:    "(650) 253-0000",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if s.Account.Phone != "+16502530000" {
		t.Fatalf("expected E.164 phone, got %q", s.Account.Phone)
	}
	if s.Account.Role != string(RoleUser) || !s.Account.Active || s.Account.PhoneVerified {
		t.Fatalf("unexpected new account state: %+v", s.Account)
	}

	_, err = env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "judy2",
		Email:    "judy2@example.com",
		Password: testPassword,
		Phone:    "+1 650 253 0000",
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != store.FieldPhone {
		t.Fatalf("expected phone conflict, got %v", err)
	}
}

// issueFailingRefresh fails Issue while down is set.
type issueFailingRefresh struct {
	*memory.RefreshTokens
	down bool
}

func (r *issueFailingRefresh) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	if r.down {
		return "", errBackendDown
	}
	return r.RefreshTokens.Issue(ctx, accountID, ttl)
}

func TestRegisterSessionFailureReturnsAccount(t *testing.T) {
	refresh := &issueFailingRefresh{RefreshTokens: memory.NewRefreshTokens(), down: true}
	env := newTestEnv(t, func(b *Builder) {
		b.WithRefreshTokens(refresh)
	})

	s, err := env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "kim",
		Email:    "kim@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrSessionNotIssued) || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrSessionNotIssued wrapping ErrStoreUnavailable, got %v", err)
	}
	if s == nil || s.Account.ID == "" || s.AccessToken != "" || s.RefreshToken != "" {
		t.Fatalf("expected account without tokens, got %+v", s)
	}

	_, err = env.engine.Register(env.freshCtx(), RegisterInput{
		Username: "kim",
		Email:    "kim@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected retry to conflict, got %v", err)
	}

	refresh.down = false
	if got := env.login(t, "kim"); got.Account.ID != s.Account.ID {
		t.Fatalf("login must reach the created account, got %s want %s", got.Account.ID, s.Account.ID)
	}
}
