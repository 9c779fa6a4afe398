// Command authctl runs operator tasks: schema migrations and account
// provisioning.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/store/postgres"
	"go.uber.org/zap"
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate       apply database migrations
  create-user   create an account with a chosen role`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "migrate":
		return migrate(ctx, args[1:], w)
	case "create-user":
		return createUserCommand(ctx, args[1:], w)
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(w, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", os.Getenv("AUTH_CONFIG"), "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if cfg.DB.URL == "" {
		return nil, errors.New("db.url is required")
	}
	return cfg, nil
}

func migrate(ctx context.Context, args []string, w io.Writer) error {
	cfg, err := loadConfig(flag.NewFlagSet("migrate", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DB.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	_, err = fmt.Fprintln(w, "migrations applied")
	return err
}

func createUserCommand(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	var opts createUserOptions
	fs.StringVar(&opts.username, "username", "", "account username")
	fs.StringVar(&opts.email, "email", "", "account email")
	fs.StringVar(&opts.fullName, "name", "", "full name")
	fs.StringVar(&opts.phone, "phone", "", "phone number")
	fs.StringVar(&opts.role, "role", string(authcore.RoleUser), "user, admin, pharmacist or delivery_partner")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DB.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger := logging.WithComponent(logging.New(cfg.LogLevel, cfg.Env), "authctl")
	defer func() { _ = logger.Sync() }()

	// Tokens are never issued here, so the in-memory token stores are enough.
	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithLogger(logger).
		WithAccounts(postgres.NewAccounts(db)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	id, err := createUser(ctx, engine, opts, os.Stdin, w)
	if err != nil {
		return err
	}
	logger.Info("account_created", zap.String("account_id", id), zap.String("role", opts.role))
	return nil
}
