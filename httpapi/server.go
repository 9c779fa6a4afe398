package httpapi

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultBodyLimit = 64 * 1024

// Server owns the Fiber app serving an Engine.
type Server struct {
	app      *fiber.App
	engine   *authcore.Engine
	logger   *zap.Logger
	exporter *prometheus.PrometheusExporter
	now      func() time.Time

	readTimeout  time.Duration
	writeTimeout time.Duration
	bodyLimit    int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPrometheus mounts GET /metrics rendering exp.
func WithPrometheus(exp *prometheus.PrometheusExporter) Option {
	return func(s *Server) {
		s.exporter = exp
	}
}

// WithTimeouts bounds reading a request and writing its response.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// WithClock overrides the time source of error timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the app and registers every route.
func New(engine *authcore.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    zap.NewNop(),
		now:       time.Now,
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "authcore",
		DisableStartupMessage: true,
		BodyLimit:             s.bodyLimit,
		ReadTimeout:           s.readTimeout,
		WriteTimeout:          s.writeTimeout,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(middleware.SecurityHeaders())
	s.app.Use(middleware.ClientIP())

	s.app.Get("/health", s.health)
	if s.exporter != nil {
		s.app.Get("/metrics", s.metrics)
	}

	auth := s.app.Group("/auth")
	auth.Post("/register", s.register)
	auth.Post("/login", s.login)
	auth.Post("/refresh", s.refresh)
	auth.Post("/logout", s.logout)
	auth.Post("/logout-all", s.logoutAll)
	auth.Post("/forgot-password", s.forgotPassword)
	auth.Post("/reset-password", s.resetPassword)
	auth.Get("/me", s.me)
	auth.Put("/profile", s.updateProfile)
	auth.Post("/send-verification-code", s.sendVerificationCode)
	auth.Post("/verify-phone", s.verifyPhone)

	admin := s.app.Group("/admin", middleware.RequireAdmin(s.engine))
	admin.Put("/users/:id/status", s.setStatus)
	admin.Put("/users/:id/role", s.setRole)
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
