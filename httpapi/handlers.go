package httpapi

import (
	"errors"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// decode parses the JSON body into dst and runs its validation rules.
func decode(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return newValidationError(err)
		}
	}
	return nil
}

func bearer(c *fiber.Ctx) (string, error) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return "", authcore.ErrInvalidToken
	}
	return token, nil
}

/*
====================================
SESSIONS
====================================
*/

func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	session, err := s.engine.Register(c.UserContext(), authcore.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newTokenResponse(session))
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	session, err := s.engine.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(newTokenResponse(session))
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	session, err := s.engine.Refresh(c.UserContext(), req.RefreshToken)
	if errors.Is(err, authcore.ErrInvalidToken) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid refresh token")
	}
	if err != nil {
		return err
	}
	return c.JSON(newTokenResponse(session))
}

func (s *Server) logout(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}
	var req logoutRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	if err := s.engine.Logout(c.UserContext(), token, req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "Successfully logged out"})
}

func (s *Server) logoutAll(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}

	if err := s.engine.LogoutAll(c.UserContext(), token); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "Successfully logged out from all devices"})
}

/*
====================================
PASSWORD RESET
====================================
*/

func (s *Server) forgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	if err := s.engine.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "If the email exists, a password reset link has been sent"})
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	err := s.engine.ResetPassword(c.UserContext(), req.Token, req.NewPassword)
	if errors.Is(err, authcore.ErrInvalidToken) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired password reset token")
	}
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "Password successfully reset"})
}

/*
====================================
ACCOUNT
====================================
*/

func (s *Server) me(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}

	account, err := s.engine.CurrentUser(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(account))
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	account, err := s.engine.UpdateProfile(c.UserContext(), token, authcore.ProfileUpdate{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(account))
}

func (s *Server) sendVerificationCode(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}

	if err := s.engine.RequestPhoneVerification(c.UserContext(), token); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "Verification code sent"})
}

func (s *Server) verifyPhone(c *fiber.Ctx) error {
	token, err := bearer(c)
	if err != nil {
		return err
	}
	var req verifyPhoneRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	account, err := s.engine.ConfirmPhoneVerification(c.UserContext(), token, req.VerificationCode)
	if err != nil {
		return err
	}
	return c.JSON(verifyPhoneResponse{
		Message:    "Phone number verified successfully",
		IsVerified: account.PhoneVerified,
	})
}
