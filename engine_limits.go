package authcore

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"go.uber.org/zap"
)

// allow counts one call of endpoint for the client in ctx. It is the first
// statement of every rate-limited operation.
func (e *Engine) allow(ctx context.Context, endpoint Endpoint) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}

	limit := e.config.RateLimit.Limits[endpoint]
	if limit <= 0 {
		return nil
	}

	window := e.config.RateLimit.Window
	client := ClientIPFromContext(ctx)
	d := e.limiter.Allow(ctx, rate.Key(string(endpoint), client), limit, window)

	switch d.Source {
	case rate.SourceFallback:
		e.metricInc(MetricRateLimitFallback)
	case rate.SourcePolicy:
		if d.Allowed {
			e.metricInc(MetricRateLimitFailOpen)
			e.logger.Warn("rate_limit_fail_open", e.logFields(ctx, endpoint, "", d.Err)...)
		} else {
			e.logger.Warn("rate_limit_fail_closed", e.logFields(ctx, endpoint, "", d.Err)...)
		}
	}

	if d.Allowed {
		return nil
	}

	retryAfter := d.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, endpoint, false, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"limit":  strconv.Itoa(d.Limit),
			"count":  strconv.FormatInt(d.Count, 10),
			"source": string(d.Source),
		}
	})
	if ce := e.logger.Check(zap.InfoLevel, "rate_limited"); ce != nil {
		ce.Write(append(e.logFields(ctx, endpoint, "", nil), zap.Duration("retry_after", retryAfter))...)
	}

	return &RateLimitError{Endpoint: endpoint, RetryAfter: retryAfter}
}
