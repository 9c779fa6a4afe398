package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	accounts map[string]store.Account
	policies []authcore.Policy
	clientIP string
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, token string, policy authcore.Policy) (store.Account, error) {
	f.policies = append(f.policies, policy)
	f.clientIP = authcore.ClientIPFromContext(ctx)

	account, ok := f.accounts[token]
	if !ok {
		return store.Account{}, authcore.ErrInvalidToken
	}
	if len(policy.Roles) > 0 {
		for _, r := range policy.Roles {
			if string(r) == account.Role {
				return account, nil
			}
		}
		return store.Account{}, authcore.ErrForbidden
	}
	return account, nil
}

func testApp(guard fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			switch {
			case errors.Is(err, authcore.ErrInvalidToken):
				return c.SendStatus(fiber.StatusUnauthorized)
			case errors.Is(err, authcore.ErrForbidden):
				return c.SendStatus(fiber.StatusForbidden)
			case errors.Is(err, authcore.ErrEngineNotReady):
				return c.SendStatus(fiber.StatusServiceUnavailable)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Use(ClientIP())
	app.Get("/private", guard, func(c *fiber.Ctx) error {
		account, ok := AccountFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(account.Username)
	})
	return app
}

func get(t *testing.T, app *fiber.App, authorization string, headers ...[2]string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	for _, h := range headers {
		req.Header.Set(h[0], h[1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func newFake() *fakeAuthorizer {
	return &fakeAuthorizer{accounts: map[string]store.Account{
		"user-token":  {ID: "u1", Username: "alice", Role: string(authcore.RoleUser)},
		"admin-token": {ID: "a1", Username: "root", Role: string(authcore.RoleAdmin)},
	}}
}

func TestGuardBearerParsing(t *testing.T) {
	fake := newFake()
	app := testApp(Guard(fake, authcore.PolicyAuthenticated))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", fiber.StatusUnauthorized},
		{"empty token", "Bearer   ", fiber.StatusUnauthorized},
		{"unknown token", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer user-token", fiber.StatusOK},
		{"lower-case scheme", "bearer user-token", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := get(t, app, tt.header)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestGuardStoresAccount(t *testing.T) {
	app := testApp(Guard(newFake(), authcore.PolicyAuthenticated))

	status, body := get(t, app, "Bearer user-token")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", body)
}

func TestRequireAdmin(t *testing.T) {
	fake := newFake()
	app := testApp(RequireAdmin(fake))

	status, _ := get(t, app, "Bearer user-token")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := get(t, app, "Bearer admin-token")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "root", body)
	assert.Equal(t, authcore.PolicyAdmin.Roles, fake.policies[len(fake.policies)-1].Roles)
}

func TestRequireRolesAndPhonePolicy(t *testing.T) {
	fake := newFake()

	status, _ := get(t, testApp(RequireRoles(fake, authcore.RoleUser, authcore.RolePharmacist)), "Bearer user-token")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = get(t, testApp(RequireVerifiedPhone(fake)), "Bearer user-token")
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, fake.policies[len(fake.policies)-1].RequireVerifiedPhone)
}

func TestGuardWithoutEngine(t *testing.T) {
	status, _ := get(t, testApp(Guard(nil, authcore.PolicyAuthenticated)), "Bearer user-token")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestClientIPResolution(t *testing.T) {
	fake := newFake()
	app := testApp(Guard(fake, authcore.PolicyAuthenticated))

	get(t, app, "Bearer user-token", [2]string{"X-Forwarded-For", "203.0.113.7, 10.0.0.1"})
	assert.Equal(t, "203.0.113.7", fake.clientIP)

	get(t, app, "Bearer user-token", [2]string{"X-Real-IP", "203.0.113.8"})
	assert.Equal(t, "203.0.113.8", fake.clientIP)

	get(t, app, "Bearer user-token")
	assert.Equal(t, "0.0.0.0", fake.clientIP)
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return fiber.ErrTeapot })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", resp.Header.Get("Content-Security-Policy"))
}
