// Package main is riskctl, the operator CLI of the wellness hub: schema
// migrations, batch imports from the signal collaborator, and offline
// classification of an export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/wellness-hub/config"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/wellness-hub/pkg/logger"
	"github.com/alem-hub/wellness-hub/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	databaseURL string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "riskctl",
		Short: "Operate the wellness hub risk store",
		Long: `riskctl manages the PostgreSQL store behind the risk dashboard.

Configuration is read from the environment (and .env) the same way the
dashboard reads it; --database-url overrides DATABASE_URL.

Examples:
  riskctl migrate up
  riskctl migrate status
  riskctl import export.json
  riskctl classify export.json --band high`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "",
		"PostgreSQL connection string (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn",
		"Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console",
		"Log format: json or console")

	root.AddCommand(
		newMigrateCmd(opts),
		newImportCmd(opts),
		newClassifyCmd(opts),
	)
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) *logger.Logger {
	return logger.New(logger.Options{
		Output: cmd.ErrOrStderr(),
		Level:  logger.ParseLevel(o.logLevel),
		Format: o.logFormat,
	})
}

// connect opens the database named by the flags or the environment, retrying
// transient connection failures.
func (o *rootOptions) connect(ctx context.Context, log *logger.Logger) (*postgres.Connection, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	url := cfg.Database.URL
	if o.databaseURL != "" {
		url = o.databaseURL
	}
	if url == "" {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL or pass --database-url")
	}

	pc := postgres.DefaultConfig()
	pc.URL = url
	pc.MaxConns = 4
	pc.MinConns = 1

	var conn *postgres.Connection
	err = retry.New(retry.Database()).Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pc)
		if err != nil {
			log.Debug("database connect failed", logger.Err(err))
			return retry.Transient(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
