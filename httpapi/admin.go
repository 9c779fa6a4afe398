package httpapi

import (
	"github.com/MrEthical07/authcore"
	"github.com/gofiber/fiber/v2"
)

// Admin routes sit behind middleware.RequireAdmin. The engine checks the
// caller again so the role change and the check read the same account.

func (s *Server) setStatus(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	account, err := s.engine.SetAccountActive(c.UserContext(), token, c.Params("id"), *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(account))
}

func (s *Server) setRole(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	account, err := s.engine.SetRole(c.UserContext(), token, c.Params("id"), authcore.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(account))
}
