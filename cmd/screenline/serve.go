// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/api"
	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/reconcile"
	"github.com/tomtom215/screenline/internal/supervisor"
	"github.com/tomtom215/screenline/internal/supervisor/services"
	"github.com/tomtom215/screenline/internal/wal"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the "screenline serve" subcommand.
func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the reconcile loop",
		Long: "Starts the supervisor tree: the config file watcher, the reconcile loop\n" +
			"(interval and plan-event triggered), the event WAL replay when enabled\n" +
			"and the HTTP API.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("yodeck_url", cfg.Yodeck.BaseURL).
		Bool("yodeck_token", cfg.Yodeck.HasToken()).
		Str("db_path", cfg.Database.Path).
		Str("events_driver", cfg.Events.Driver).
		Msg("Starting Screenline with supervisor tree")

	a, err := openSignage(cfg, true)
	if err != nil {
		return err
	}
	defer closeApp(a)
	if err := a.openDatabase(); err != nil {
		return err
	}
	if err := a.openPublishing(); err != nil {
		return err
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: shutdownTimeout,
	})

	if cfg.File != "" {
		tree.AddDataService(services.NewConfigWatchService(cfg.File, a.reload))
	} else {
		logging.Info().Msg("No config file loaded; config watch disabled")
	}
	tree.AddMessagingService(reconcile.NewService(a.rec, a.db, a.bus, cfg.Reconcile))
	if a.wal != nil {
		tree.AddMessagingService(wal.NewRetryService(a.wal, a.bus))
	}
	tree.AddMessagingService(publish.NewRecoveryService(a.plans, cfg.Publish.RecoveryInterval))

	router := api.NewRouter(api.NewHandler(a.apiDependencies()), api.ChiMiddlewareConfigFrom(cfg.Server))
	srv := services.NewHTTPServer(cfg.Server, router.Setup())
	tree.AddAPIService(services.NewHTTPServerService(srv, shutdownTimeout))

	logging.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
	}
	logging.Info().Msg("Screenline stopped")
	return nil
}
