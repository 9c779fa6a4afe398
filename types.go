package authcore

import (
	"context"
	"slices"
	"time"

	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser            Role = "user"
	RoleAdmin           Role = "admin"
	RolePharmacist      Role = "pharmacist"
	RoleDeliveryPartner Role = "delivery_partner"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RolePharmacist, RoleDeliveryPartner:
		return true
	default:
		return false
	}
}

// Endpoint names a rate-limited operation. It is also the counter key
// segment, so values must stay stable.
type Endpoint string

const (
	EndpointLogin          Endpoint = "login"
	EndpointRegister       Endpoint = "register"
	EndpointForgotPassword Endpoint = "forgot_password"
	EndpointRefresh        Endpoint = "refresh"
	EndpointResetPassword  Endpoint = "reset_password"
	EndpointGeneral        Endpoint = "general"
)

// TokenTypeBearer is the only token type the engine issues.
const TokenTypeBearer = "bearer"

// Session is the result of a successful register, login or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime.
	ExpiresIn time.Duration
	Account   store.Account
}

// RegisterInput is the payload of Engine.Register. Phone is optional and is
// stored in E.164.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Phone    string
}

// ProfileUpdate lists optional changes for Engine.UpdateProfile. Nil fields
// are left unchanged; an empty Phone clears the number.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
}

// Policy is an authorization requirement checked by Engine.Authorize.
// An empty Roles list admits every role.
type Policy struct {
	Roles                []Role
	RequireVerifiedPhone bool
}

var (
	// PolicyAuthenticated admits any active account.
	PolicyAuthenticated = Policy{}
	// PolicyAdmin admits administrators.
	PolicyAdmin = Policy{Roles: []Role{RoleAdmin}}
	// PolicyPharmacist admits pharmacists and administrators.
	PolicyPharmacist = Policy{Roles: []Role{RolePharmacist, RoleAdmin}}
	// PolicyDelivery admits delivery partners and administrators.
	PolicyDelivery = Policy{Roles: []Role{RoleDeliveryPartner, RoleAdmin}}
	// PolicyVerifiedPhone admits any active account with a verified phone.
	PolicyVerifiedPhone = Policy{RequireVerifiedPhone: true}
)

func (p Policy) allowsRole(r Role) bool {
	return len(p.Roles) == 0 || slices.Contains(p.Roles, r)
}

// Notifier delivers secrets to account owners. The engine never delivers
// anything itself.
type Notifier interface {
	SendPasswordReset(ctx context.Context, account store.Account, secret string) error
	SendPhoneCode(ctx context.Context, account store.Account, code string) error
}

// LogNotifier records that a message would have been sent. It never logs
// the secret and is meant for development.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

func (n LogNotifier) SendPasswordReset(ctx context.Context, account store.Account, secret string) error {
	n.logger().Info("password reset dispatched",
		zap.String("account_id", account.ID),
		zap.Int("secret_len", len(secret)),
	)
	return nil
}

func (n LogNotifier) SendPhoneCode(ctx context.Context, account store.Account, code string) error {
	n.logger().Info("phone verification code dispatched",
		zap.String("account_id", account.ID),
		zap.Int("code_len", len(code)),
	)
	return nil
}

// HealthStatus summarizes Engine.Health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the state of one dependency.
type HealthCheck struct {
	Status HealthStatus
	Error  string
}

// HealthReport is the result of Engine.Health.
type HealthReport struct {
	Status HealthStatus
	Checks map[string]HealthCheck
}
