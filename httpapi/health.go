package httpapi

import (
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) health(c *fiber.Ctx) error {
	report := s.engine.Health(c.UserContext())

	resp := healthResponse{
		Status:    string(report.Status),
		Timestamp: s.now().UTC(),
		Checks:    make(map[string]healthCheckResponse, len(report.Checks)),
	}
	// Causes stay in the engine log; the endpoint is unauthenticated.
	for name, check := range report.Checks {
		resp.Checks[name] = healthCheckResponse{Status: string(check.Status)}
	}

	status := fiber.StatusOK
	if report.Status == authcore.HealthUnhealthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

func (s *Server) metrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, prometheus.ContentType)
	return c.SendString(s.exporter.Render())
}
