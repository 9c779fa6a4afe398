package middleware

import (
	"context"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
	"github.com/gofiber/fiber/v2"
)

const accountLocalsKey = "authcore.account"

// Authorizer is the subset of *authcore.Engine the guards need.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string, policy authcore.Policy) (store.Account, error)
}

// AccountFromContext returns the account stored by a guard.
func AccountFromContext(c *fiber.Ctx) (store.Account, bool) {
	account, ok := c.Locals(accountLocalsKey).(store.Account)
	return account, ok
}

// BearerToken returns the access token of the Authorization header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	return bearerToken(c.Get(fiber.HeaderAuthorization))
}

// Guard rejects requests whose bearer token does not satisfy policy. A
// missing or malformed header yields authcore.ErrInvalidToken.
func Guard(engine Authorizer, policy authcore.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if engine == nil {
			return authcore.ErrEngineNotReady
		}

		token, ok := BearerToken(c)
		if !ok {
			return authcore.ErrInvalidToken
		}

		account, err := engine.Authorize(c.UserContext(), token, policy)
		if err != nil {
			return err
		}

		c.Locals(accountLocalsKey, account)
		return c.Next()
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
