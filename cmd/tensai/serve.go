package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/tensai/internal/app"
	"github.com/ent0n29/tensai/internal/observability"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API, the lead reconciler and the purge schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(c.cfg.MetricsNamespace)
	res, err := app.Build(ctx, c.cfg, c.logger, metrics)
	if err != nil {
		return err
	}
	defer res.Close()

	httpServer := &http.Server{
		Addr:    c.cfg.BindAddr,
		Handler: res.API.Router(),
	}
	reconciler := res.Reconciler(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("server listening", zap.String("addr", c.cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		return res.Admin.RunPurgeSchedule(gctx, c.cfg.PurgeExpiredCron, c.cfg.PurgeExpiredAfter)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.logger.Info("shutdown complete")
	return err
}
