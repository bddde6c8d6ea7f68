package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/policy-portal/repositories/postgres"
	"go.uber.org/zap"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the session and audit tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts)
		},
	}
}

func runMigrate(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema is up to date", zap.String("connection", cfg.Database.LogString()))
	return nil
}
