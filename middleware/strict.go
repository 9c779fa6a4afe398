package middleware

import (
	"github.com/MrEthical07/authcore"
	"github.com/gofiber/fiber/v2"
)

// RequireAdmin admits administrators only.
func RequireAdmin(engine Authorizer) fiber.Handler {
	return Guard(engine, authcore.PolicyAdmin)
}

// RequireRoles admits any of roles.
func RequireRoles(engine Authorizer, roles ...authcore.Role) fiber.Handler {
	return Guard(engine, authcore.Policy{Roles: roles})
}

// RequireVerifiedPhone admits active accounts whose phone is verified.
func RequireVerifiedPhone(engine Authorizer) fiber.Handler {
	return Guard(engine, authcore.PolicyVerifiedPhone)
}
