package authcore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Numbers without a country code are read as North American.
const defaultPhoneRegion = "US"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// NormalizePhone parses a phone number and formats it as E.164.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", invalidInput(errors.New("phone: must be a valid phone number"))
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) checkPassword(password string) error {
	minLen, maxLen := e.config.Password.MinLength, e.config.Password.MaxLength
	if len(password) < minLen || len(password) > maxLen {
		return invalidInput(fmt.Errorf("password: must be between %d and %d characters", minLen, maxLen))
	}
	return nil
}

// normalizeRegister trims and validates in. The phone, when present, is
// returned in E.164.
func (e *Engine) normalizeRegister(in RegisterInput) (RegisterInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(3, 50), validation.Match(usernamePattern)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.FullName, validation.Length(0, 200)),
	)
	if err != nil {
		return in, invalidInput(err)
	}
	if err := e.checkPassword(in.Password); err != nil {
		return in, err
	}

	if strings.TrimSpace(in.Phone) != "" {
		phone, err := NormalizePhone(in.Phone)
		if err != nil {
			return in, err
		}
		in.Phone = phone
	} else {
		in.Phone = ""
	}
	return in, nil
}

func validateFullName(name string) error {
	if err := validation.Validate(name, validation.Length(0, 200)); err != nil {
		return invalidInput(fmt.Errorf("full_name: %v", err))
	}
	return nil
}
