package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

var errDown = errors.New("backend down")

func loginDeps(account store.Account, lookupErr error) (LoginDeps, *int) {
	equalized := 0
	return LoginDeps{
		AccountByUsername: func(context.Context, string) (store.Account, error) {
			return account, lookupErr
		},
		UpdateAccount: func(_ context.Context, a store.Account) (store.Account, error) {
			return a, nil
		},
		VerifyPassword: func(password, hash string) bool { return hash == "hash:"+password },
		NeedsRehash:    func(hash string) bool { return false },
		HashPassword:   func(p string) (string, error) { return "hash:" + p, nil },
		EqualizeTiming: func(string) { equalized++ },
		IssueSession: func(context.Context, store.Account) (string, string, error) {
			return "access", "refresh", nil
		},
		Warn: func(string, ...any) {},
	}, &equalized
}

func TestRunLoginOutcomes(t *testing.T) {
	active := store.Account{ID: "a1", PasswordHash: "hash:secret-pass", Active: true}

	tests := []struct {
		name      string
		account   store.Account
		lookupErr error
		password  string
		want      LoginFailureKind
	}{
		{"success", active, nil, "secret-pass", LoginFailureNone},
		{"empty password", active, nil, "", LoginFailureEmptyPassword},
		{"unknown user", store.Account{}, store.ErrNotFound, "secret-pass", LoginFailureUnknownUser},
		{"wrong password", active, nil, "other-pass", LoginFailurePasswordMismatch},
		{"inactive", store.Account{ID: "a1", PasswordHash: "hash:secret-pass"}, nil, "secret-pass", LoginFailureInactive},
		{"backend", store.Account{}, errDown, "secret-pass", LoginFailureLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := loginDeps(tt.account, tt.lookupErr)
			res := RunLogin(context.Background(), "alice", tt.password, deps)
			if res.Failure != tt.want {
				t.Fatalf("expected failure %d, got %d (%v)", tt.want, res.Failure, res.Err)
			}
			if tt.want == LoginFailureNone && (res.AccessToken != "access" || res.RefreshToken != "refresh") {
				t.Fatalf("expected issued pair, got %+v", res)
			}
			if tt.want != LoginFailureNone && res.AccessToken != "" {
				t.Fatal("failed login must not carry tokens")
			}
		})
	}
}

func TestRunLoginEqualizesUnknownUser(t *testing.T) {
	deps, equalized := loginDeps(store.Account{}, store.ErrNotFound)
	RunLogin(context.Background(), "nobody", "secret-pass", deps)
	if *equalized != 1 {
		t.Fatalf("expected one dummy verification, got %d", *equalized)
	}
}

func TestRunLoginUpgradesHash(t *testing.T) {
	deps, _ := loginDeps(store.Account{ID: "a1", PasswordHash: "hash:secret-pass", Active: true}, nil)
	deps.UpgradeHashOnLogin = true
	deps.NeedsRehash = func(string) bool { return true }

	var saved store.Account
	deps.UpdateAccount = func(_ context.Context, a store.Account) (store.Account, error) {
		saved = a
		return a, nil
	}

	res := RunLogin(context.Background(), "alice", "secret-pass", deps)
	if res.Failure != LoginFailureNone || !res.HashUpgraded {
		t.Fatalf("expected upgraded login, got %+v", res)
	}
	if saved.ID != "a1" {
		t.Fatal("expected account to be rewritten")
	}

	// A failed rewrite still signs in.
	deps.UpdateAccount = func(context.Context, store.Account) (store.Account, error) {
		return store.Account{}, errDown
	}
	res = RunLogin(context.Background(), "alice", "secret-pass", deps)
	if res.Failure != LoginFailureNone || res.HashUpgraded {
		t.Fatalf("expected plain login after failed upgrade, got %+v", res)
	}
}

func refreshDeps(rotateErr error, account store.Account) (RefreshDeps, *[]string) {
	var revoked []string
	return RefreshDeps{
		RefreshTTL:  time.Hour,
		ParseSecret: func(s string) error { return nil },
		Rotate: func(context.Context, string, time.Duration) (store.RefreshToken, string, error) {
			if rotateErr != nil {
				return store.RefreshToken{}, "", rotateErr
			}
			return store.RefreshToken{AccountID: "a1"}, "next", nil
		},
		RevokeAll: func(_ context.Context, id string) error {
			revoked = append(revoked, id)
			return nil
		},
		AccountByID: func(context.Context, string) (store.Account, error) {
			return account, nil
		},
		IssueAccessToken: func(store.Account) (string, error) { return "access", nil },
	}, &revoked
}

func TestRunRefreshOutcomes(t *testing.T) {
	active := store.Account{ID: "a1", Active: true}

	deps, _ := refreshDeps(nil, active)
	res := RunRefresh(context.Background(), "secret", deps)
	if res.Failure != RefreshFailureNone || res.RefreshToken != "next" || res.AccessToken != "access" {
		t.Fatalf("unexpected success result: %+v", res)
	}

	deps, _ = refreshDeps(store.ErrTokenReused, active)
	if res := RunRefresh(context.Background(), "secret", deps); res.Failure != RefreshFailureReuse {
		t.Fatalf("expected reuse, got %d", res.Failure)
	}

	deps, _ = refreshDeps(store.ErrNotFound, active)
	if res := RunRefresh(context.Background(), "secret", deps); res.Failure != RefreshFailureNotFound {
		t.Fatalf("expected not found, got %d", res.Failure)
	}

	deps, _ = refreshDeps(errDown, active)
	if res := RunRefresh(context.Background(), "secret", deps); res.Failure != RefreshFailureRotate {
		t.Fatalf("expected rotate failure, got %d", res.Failure)
	}

	deps, _ = refreshDeps(nil, active)
	deps.ParseSecret = func(string) error { return errors.New("malformed") }
	if res := RunRefresh(context.Background(), "x", deps); res.Failure != RefreshFailureMalformed {
		t.Fatalf("expected malformed, got %d", res.Failure)
	}
}

func TestRunRefreshInactiveRevokesRotatedToken(t *testing.T) {
	deps, revoked := refreshDeps(nil, store.Account{ID: "a1"})

	res := RunRefresh(context.Background(), "secret", deps)
	if res.Failure != RefreshFailureAccountInactive {
		t.Fatalf("expected inactive failure, got %d", res.Failure)
	}
	if res.RefreshToken != "" {
		t.Fatal("rejected refresh must not return a secret")
	}
	if len(*revoked) != 1 || (*revoked)[0] != "a1" {
		t.Fatalf("expected account tokens revoked, got %v", *revoked)
	}
}

func TestRunLogoutIgnoresForeignSecret(t *testing.T) {
	revokeCalls := 0
	deps := LogoutDeps{
		Redeem: func(context.Context, string) (store.RefreshToken, error) {
			return store.RefreshToken{AccountID: "owner"}, nil
		},
		Revoke: func(context.Context, string) (bool, error) {
			revokeCalls++
			return true, nil
		},
	}

	if res := RunLogout(context.Background(), "intruder", "secret", deps); res.Failure != LogoutFailureNone || res.Revoked {
		t.Fatalf("foreign secret must be a no-op, got %+v", res)
	}
	if revokeCalls != 0 {
		t.Fatal("foreign secret must not be revoked")
	}

	if res := RunLogout(context.Background(), "owner", "secret", deps); !res.Revoked {
		t.Fatalf("expected own secret revoked, got %+v", res)
	}

	deps.Redeem = func(context.Context, string) (store.RefreshToken, error) {
		return store.RefreshToken{}, store.ErrTokenReused
	}
	if res := RunLogout(context.Background(), "owner", "secret", deps); res.Failure != LogoutFailureNone {
		t.Fatalf("revoked secret must be a no-op, got %+v", res)
	}
}

func TestRunResetPasswordConsumesBeforeWrite(t *testing.T) {
	var order []string
	deps := PasswordResetDeps{
		ParseSecret: func(string) error { return nil },
		CheckReset: func(context.Context, string) (store.ResetToken, error) {
			order = append(order, "check")
			return store.ResetToken{AccountID: "a1"}, nil
		},
		HashPassword: func(p string) (string, error) { return "hash:" + p, nil },
		ConsumeReset: func(context.Context, string) (bool, error) {
			order = append(order, "consume")
			return true, nil
		},
		AccountByID: func(context.Context, string) (store.Account, error) {
			return store.Account{ID: "a1"}, nil
		},
		UpdateAccount: func(_ context.Context, a store.Account) (store.Account, error) {
			order = append(order, "update:"+a.PasswordHash)
			return a, nil
		},
		RevokeAll: func(context.Context, string) error {
			order = append(order, "revoke")
			return nil
		},
	}

	res := RunResetPassword(context.Background(), "secret", "new-password", deps)
	if res.Failure != PasswordResetFailureNone {
		t.Fatalf("unexpected failure %d: %v", res.Failure, res.Err)
	}
	want := []string{"check", "revoke", "consume", "update:hash:new-password", "revoke"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}

	order = nil
	deps.ConsumeReset = func(context.Context, string) (bool, error) { return false, nil }
	res = RunResetPassword(context.Background(), "secret", "new-password", deps)
	if res.Failure != PasswordResetFailureInvalidToken {
		t.Fatalf("expected lost consume race to be invalid, got %d", res.Failure)
	}
	for _, step := range order {
		if step != "check" && step != "revoke" {
			t.Fatalf("password must not be written after a lost race: %v", order)
		}
	}
}

func TestRunResetPasswordRevokeFailureKeepsSecret(t *testing.T) {
	var order []string
	deps := PasswordResetDeps{
		ParseSecret: func(string) error { return nil },
		CheckReset: func(context.Context, string) (store.ResetToken, error) {
			return store.ResetToken{AccountID: "a1"}, nil
		},
		HashPassword: func(p string) (string, error) { return "hash:" + p, nil },
		ConsumeReset: func(context.Context, string) (bool, error) {
			order = append(order, "consume")
			return true, nil
		},
		AccountByID: func(context.Context, string) (store.Account, error) {
			return store.Account{ID: "a1"}, nil
		},
		UpdateAccount: func(_ context.Context, a store.Account) (store.Account, error) {
			order = append(order, "update")
			return a, nil
		},
		RevokeAll: func(context.Context, string) error {
			return errDown
		},
	}

	res := RunResetPassword(context.Background(), "secret", "new-password", deps)
	if res.Failure != PasswordResetFailureRevoke {
		t.Fatalf("expected revoke failure, got %d", res.Failure)
	}
	if len(order) != 0 {
		t.Fatalf("secret and password must be untouched when revocation fails: %v", order)
	}
}

func TestRunForgotPasswordSkipsInactive(t *testing.T) {
	issued := 0
	deps := PasswordResetDeps{
		AccountByEmail: func(context.Context, string) (store.Account, error) {
			return store.Account{ID: "a1"}, nil
		},
		IssueReset: func(context.Context, string, time.Duration) (string, error) {
			issued++
			return "secret", nil
		},
		Notify: func(context.Context, store.Account, string) error { return nil },
	}

	res := RunForgotPassword(context.Background(), "a@example.com", deps)
	if res.Failure != PasswordResetFailureNone || res.Dispatched || issued != 0 {
		t.Fatalf("inactive account must not receive a secret: %+v issued=%d", res, issued)
	}
}

func validateDeps(account store.Account, lookupErr error) ValidateDeps {
	return ValidateDeps{
		ParseAccess: func(tok string) (*jwt.Claims, error) {
			if tok != "good" {
				return nil, errors.New("bad signature")
			}
			return &jwt.Claims{Subject: "a1", Role: "admin"}, nil
		},
		AccountByID: func(context.Context, string) (store.Account, error) {
			return account, lookupErr
		},
	}
}

func TestRunValidateReadsStoredState(t *testing.T) {
	user := store.Account{ID: "a1", Role: "user", Active: true}

	if res := RunValidate(context.Background(), "forged", validateDeps(user, nil)); res.Failure != ValidateFailureUnauthorized {
		t.Fatalf("expected unauthorized, got %d", res.Failure)
	}
	if res := RunValidate(context.Background(), "good", validateDeps(user, store.ErrNotFound)); res.Failure != ValidateFailureAccountNotFound {
		t.Fatalf("expected not found, got %d", res.Failure)
	}
	if res := RunValidate(context.Background(), "good", validateDeps(user, errDown)); res.Failure != ValidateFailureLookup {
		t.Fatalf("expected lookup failure, got %d", res.Failure)
	}
	if res := RunValidate(context.Background(), "good", validateDeps(store.Account{ID: "a1"}, nil)); res.Failure != ValidateFailureInactive {
		t.Fatalf("expected inactive, got %d", res.Failure)
	}

	// The claim says admin; the store says user.
	deps := validateDeps(user, nil)
	deps.AllowRole = func(role string) bool { return role == "admin" }
	if res := RunValidate(context.Background(), "good", deps); res.Failure != ValidateFailureRole {
		t.Fatalf("expected role failure, got %d", res.Failure)
	}

	deps = validateDeps(user, nil)
	deps.RequireVerifiedPhone = true
	if res := RunValidate(context.Background(), "good", deps); res.Failure != ValidateFailureUnverified {
		t.Fatalf("expected unverified, got %d", res.Failure)
	}

	if res := RunValidate(context.Background(), "good", validateDeps(user, nil)); res.Failure != ValidateFailureNone || res.Account.ID != "a1" {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestRunSetAccountActiveRevokesAfterUpdate(t *testing.T) {
	var order []string
	deps := AccountStatusDeps{
		UpdateAccount: func(_ context.Context, a store.Account) (store.Account, error) {
			order = append(order, "update")
			return a, nil
		},
		RevokeAll: func(context.Context, string) error {
			order = append(order, "revoke")
			return nil
		},
	}
	target := store.Account{ID: "t1", Active: true}

	res := RunSetAccountActive(context.Background(), "admin", target, false, deps)
	if res.Failure != AccountStatusFailureNone || !res.Changed || res.Account.Active {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(order) != 2 || order[0] != "update" || order[1] != "revoke" {
		t.Fatalf("expected update then revoke, got %v", order)
	}

	order = nil
	res = RunSetAccountActive(context.Background(), "admin", res.Account, false, deps)
	if res.Changed || len(order) != 0 {
		t.Fatalf("repeated deactivation must be a no-op, got %+v %v", res, order)
	}

	if res := RunSetAccountActive(context.Background(), "t1", target, false, deps); res.Failure != AccountStatusFailureSelf {
		t.Fatalf("expected self failure, got %d", res.Failure)
	}
	if res := RunSetRole(context.Background(), "t1", store.Account{ID: "t1", Role: "admin"}, "user", deps); res.Failure != AccountStatusFailureSelf {
		t.Fatalf("expected self demotion failure, got %d", res.Failure)
	}
}
