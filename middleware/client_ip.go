package middleware

import (
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/gofiber/fiber/v2"
)

// ClientIP stores the caller's address in the user context with
// authcore.WithClientIP. The first X-Forwarded-For entry wins, then
// X-Real-IP, then the connection address. Only deploy behind a proxy that
// overwrites these headers.
func ClientIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(authcore.WithClientIP(c.UserContext(), RemoteIP(c)))
		return c.Next()
	}
}

// RemoteIP resolves the client address the way ClientIP does.
func RemoteIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return c.IP()
}
