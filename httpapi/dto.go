package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

/*
====================================
REQUESTS
====================================
*/

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.FullName, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.By(phoneRule)),
	)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type profileRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

func (r profileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.By(phoneRule)),
	)
}

type verifyPhoneRequest struct {
	VerificationCode string `json:"verification_code"`
}

func (r verifyPhoneRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.VerificationCode, validation.Required, is.Digit),
	)
}

type statusRequest struct {
	Active *bool `json:"active"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Active, validation.NotNil),
	)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(
			string(authcore.RoleUser),
			string(authcore.RoleAdmin),
			string(authcore.RolePharmacist),
			string(authcore.RoleDeliveryPartner),
		)),
	)
}

// phoneRule accepts an empty value or anything that parses as a valid
// phone number.
func phoneRule(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case *string:
		if v == nil {
			return nil
		}
		raw = *v
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := authcore.NormalizePhone(raw); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

/*
====================================
RESPONSES
====================================
*/

type accountResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role"`
	IsActive      bool      `json:"is_active"`
	PhoneVerified bool      `json:"is_phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newAccountResponse(a store.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		Phone:         a.Phone,
		Role:          a.Role,
		IsActive:      a.Active,
		PhoneVerified: a.PhoneVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	User         accountResponse `json:"user"`
}

func newTokenResponse(s *authcore.Session) tokenResponse {
	return tokenResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    int64(s.ExpiresIn / time.Second),
		User:         newAccountResponse(s.Account),
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyPhoneResponse struct {
	Message    string `json:"message"`
	IsVerified bool   `json:"is_verified"`
}

type healthCheckResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status    string                         `json:"status"`
	Timestamp time.Time                      `json:"timestamp"`
	Checks    map[string]healthCheckResponse `json:"checks"`
}
