package httpapi

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type errorBody struct {
	Code      int           `json:"code"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Path      string        `json:"path"`
	Details   []fieldDetail `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validationError carries per-field request validation failures.
type validationError struct {
	details []fieldDetail
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.details))
	for _, d := range e.details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func newValidationError(err error) error {
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return &validationError{details: []fieldDetail{{Message: err.Error()}}}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	details := make([]fieldDetail, 0, len(names))
	for _, name := range names {
		details = append(details, fieldDetail{Field: name, Message: fields[name].Error()})
	}
	return &validationError{details: details}
}

// handleError is the app ErrorHandler. Every failure leaves as the same
// envelope; only 5xx causes are logged and none are echoed.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	body := errorBody{
		Timestamp: s.now().UTC(),
		Path:      c.Path(),
	}

	var (
		verr *validationError
		rerr *authcore.RateLimitError
		ferr *fiber.Error
		cerr *authcore.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		body.Code = fiber.StatusUnprocessableEntity
		body.Message = "Validation error"
		body.Details = verr.details
	case errors.As(err, &rerr):
		body.Code = fiber.StatusTooManyRequests
		body.Message = "Rate limit exceeded"
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds(rerr.RetryAfter))
	case errors.Is(err, authcore.ErrInvalidCredentials):
		body.Code = fiber.StatusUnauthorized
		body.Message = "Incorrect username or password"
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	case errors.Is(err, authcore.ErrInvalidToken):
		body.Code = fiber.StatusUnauthorized
		body.Message = "Could not validate credentials"
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	case errors.Is(err, authcore.ErrAccountInactive):
		body.Code = fiber.StatusForbidden
		body.Message = "Inactive user"
	case errors.Is(err, authcore.ErrForbidden):
		body.Code = fiber.StatusForbidden
		body.Message = "Not enough permissions"
	case errors.Is(err, authcore.ErrPhoneNotVerified):
		body.Code = fiber.StatusForbidden
		body.Message = "Phone number not verified"
	case errors.Is(err, authcore.ErrVerificationInvalid):
		body.Code = fiber.StatusBadRequest
		body.Message = "Invalid verification code"
	case errors.Is(err, authcore.ErrAccountNotFound):
		body.Code = fiber.StatusNotFound
		body.Message = "User not found"
	case errors.As(err, &cerr):
		body.Code = fiber.StatusConflict
		body.Message = conflictMessage(cerr.Field)
	case errors.Is(err, authcore.ErrConflict):
		body.Code = fiber.StatusConflict
		body.Message = conflictMessage("")
	case errors.Is(err, authcore.ErrInvalidInput):
		body.Code = fiber.StatusBadRequest
		body.Message = strings.TrimPrefix(err.Error(), authcore.ErrInvalidInput.Error()+": ")
	case errors.Is(err, authcore.ErrSessionNotIssued):
		body.Code = fiber.StatusServiceUnavailable
		body.Message = "Account created, sign in to continue"
		c.Set(fiber.HeaderRetryAfter, "1")
	case errors.Is(err, authcore.ErrStoreUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		body.Code = fiber.StatusServiceUnavailable
		body.Message = "Service temporarily unavailable"
		c.Set(fiber.HeaderRetryAfter, "1")
	case errors.As(err, &ferr):
		body.Code = ferr.Code
		body.Message = ferr.Message
	default:
		body.Code = fiber.StatusInternalServerError
		body.Message = "Internal server error"
	}

	if body.Code >= fiber.StatusInternalServerError {
		s.logger.Error("request_failed",
			zap.String("method", c.Method()),
			zap.String("path", body.Path),
			zap.Int("status", body.Code),
			zap.Error(err),
		)
	}

	return c.Status(body.Code).JSON(errorEnvelope{Error: body})
}

func conflictMessage(field string) string {
	switch field {
	case "username":
		return "Username already registered"
	case "email":
		return "Email already registered"
	case "phone":
		return "Phone number already registered"
	default:
		return "Account already exists"
	}
}

// retryAfterSeconds rounds up and never advertises less than one second.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
