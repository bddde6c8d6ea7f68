// Package cmd implements the portal command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/internal/observability"
	"go.uber.org/zap"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the portal command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "portal",
		Short: "Policy and license management portal",
		Long: `portal serves the browser-facing side of the policy and license
management system. It holds user sessions, guards every screen by role and
forwards data calls to the backend API.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (json, console)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newScreensCommand(),
	)
	return root
}

// ExecuteContext runs the command line with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// setup loads the configuration and builds the logger.
func (o *rootOptions) setup(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.LogFormat = o.logFormat
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.With(zap.String("environment", cfg.Environment)), nil
}
