// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doorkeep/doorkeep/internal/auth/postgres"
	"github.com/doorkeep/doorkeep/internal/config"
	"github.com/doorkeep/doorkeep/internal/logging"
	"github.com/doorkeep/doorkeep/internal/observability"
	"github.com/doorkeep/doorkeep/internal/protocol"
	"github.com/doorkeep/doorkeep/internal/store"
	"github.com/doorkeep/doorkeep/internal/transport"
	"github.com/samber/oops"
)

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the login server",
		Long: `Start the login server: listens for client connections, dispatches
login protocol envelopes, and serves metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("listen-addr", "", "transport listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logging.SetDefault("doorkeep", version, cfg.Server.LogFormat)

	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required to serve")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schema first: create-if-absent is idempotent, so serving after a
	// migration no-op is the common path.
	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var ready atomic.Bool

	var metrics protocol.Metrics
	var obs *observability.Server
	if cfg.Server.MetricsAddr != "" {
		obs = observability.NewServer(cfg.Server.MetricsAddr, ready.Load)
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			if err := obs.Stop(context.Background()); err != nil {
				slog.Warn("observability shutdown failed", "error", err)
			}
		}()
		metrics = obs.Metrics()
	}

	users := postgres.NewUserStore(pool)
	opts := []protocol.Option{
		protocol.WithLogger(slog.Default().With("component", "protocol")),
		protocol.WithEvents(serverEvents()),
	}
	if metrics != nil {
		opts = append(opts, protocol.WithMetrics(metrics))
	}
	handler, err := protocol.NewHandler(cfg.HandlerConfig(), users, opts...)
	if err != nil {
		return err
	}

	server := transport.NewServer(cfg.Server.ListenAddr)
	if err := server.Register(handler); err != nil {
		return err
	}

	ready.Store(true)
	slog.Info("doorkeep serving",
		"listen_addr", cfg.Server.ListenAddr,
		"tag", cfg.Protocol.Tag,
		"allow_add_user", cfg.Auth.AllowAddUser,
	)

	return server.Run(ctx)
}

// serverEvents logs auth outcomes; other subsystems would hook in here the
// same way clients of the original plugin subscribed to its delegates.
func serverEvents() protocol.Events {
	return protocol.Events{
		LoginSucceeded: func(userID int32, conn transport.Conn) {
			slog.Info("user logged in", "user_id", userID, "conn_id", conn.ID().String())
		},
		LoggedOut: func(userID int32, conn transport.Conn) {
			slog.Info("user logged out", "user_id", userID, "conn_id", conn.ID().String())
		},
		UserAdded: func(userID int32, username string, conn transport.Conn) {
			slog.Info("user registered", "user_id", userID, "username", username, "conn_id", conn.ID().String())
		},
	}
}
