// Command authd serves the authentication engine over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("AUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := logging.WithComponent(logging.New(cfg.LogLevel, cfg.Env), "authd")
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("authd_stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	builder := authcore.New().
		WithConfig(engineCfg).
		WithLogger(logger).
		WithNotifier(authcore.LogNotifier{Logger: logger})

	// -------- REDIS --------
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			// The limiter serves from memory until Redis answers.
			logger.Warn("redis_unreachable", zap.String("address", cfg.Redis.Address), zap.Error(err))
		}
		builder.WithRedis(client)
	} else {
		logger.Warn("redis_not_configured", zap.String("mode", "in-process rate limiting and tokens"))
	}

	// -------- ACCOUNTS --------
	if cfg.DB.URL != "" {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		builder.WithAccounts(postgres.NewAccounts(db))
		if cfg.Redis.Address == "" {
			builder.WithRefreshTokens(postgres.NewRefreshTokens(db)).
				WithResetTokens(postgres.NewResetTokens(db))
		}
	} else {
		logger.Warn("database_not_configured", zap.String("mode", "in-memory accounts"))
		builder.WithAccounts(memory.NewAccounts())
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security_posture",
		zap.String("signing_algorithm", report.SigningAlgorithm),
		zap.Duration("access_ttl", report.AccessTTL),
		zap.Duration("refresh_ttl", report.RefreshTTL),
		zap.String("password_scheme", report.Password.Scheme),
		zap.String("rate_limit_backend", report.RateLimitBackend),
		zap.Bool("rate_limit_fail_closed", report.RateLimitFailClosed),
		zap.Bool("shared_token_store", report.SharedTokenStore),
		zap.Bool("audit_enabled", report.AuditEnabled),
	)

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
	}
	if cfg.HTTP.MetricsEnabled {
		opts = append(opts, httpapi.WithPrometheus(prometheus.NewPrometheusExporter(engine)))
	}
	server := httpapi.New(engine, opts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd_listening", zap.String("address", cfg.HTTP.Address), zap.String("env", cfg.Env))
		errCh <- server.Listen(cfg.HTTP.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("authd_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.DB.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}
