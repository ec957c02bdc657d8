package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/app"
	"github.com/ent0n29/tensai/internal/config"
	"github.com/ent0n29/tensai/internal/observability"
)

// cli carries state shared by every subcommand once the root pre-run has
// loaded configuration.
type cli struct {
	envFiles []string
	cfg      config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "tensai",
		Short:         "Lead-capture chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(c.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.leadsCmd(),
		c.sessionsCmd(),
		c.purgeCmd(),
	)
	return root
}

// withApp builds the application without metrics registration or
// background workers, runs fn and releases storage.
func (c *cli) withApp(ctx context.Context, fn func(*app.BuildResult) error) error {
	res, err := app.Build(ctx, c.cfg, c.logger, nil)
	if err != nil {
		return err
	}
	defer res.Close()
	return fn(res)
}
