// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/chms/chms/internal/config"
	"github.com/chms/chms/internal/logging"
	"github.com/chms/chms/internal/observability"
	"github.com/chms/chms/internal/store"
)

const serviceName = "chms"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CHMS HTTP server",
		Long: `Start the HTTP server. Configuration is read from the config file,
CHMS_* environment variables and flags, in increasing precedence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.URL,
		store.WithMaxConns(cfg.Database.MaxConns),
		store.WithConnectAttempts(cfg.Database.ConnectAttempts, store.DefaultConnectBackoff),
		store.WithConnectLogger(logger),
	)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database", "max_conns", cfg.Database.MaxConns)

	var (
		obsServer *observability.Server
		metrics   *observability.Metrics
		obsErrCh  <-chan error
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, pool.Ping, observability.WithServerLogger(logger))
		metrics = obsServer.Metrics()
		if obsErrCh, err = obsServer.Start(); err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
	}

	a, err := newApp(cfg, pool, logger, metrics)
	if err != nil {
		stopServer(logger, "observability", obsServer, cfg.HTTP.ShutdownTimeout)
		return err
	}
	defer a.close()
	a.sweeper.Start(ctx)

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopServer(logger, "observability", obsServer, cfg.HTTP.ShutdownTimeout)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()

	cmd.Println("CHMS server started")
	logger.Info("chms ready",
		"http_addr", listener.Addr().String(),
		"metrics_addr", cfg.Metrics.Addr,
		"session_store", cfg.Session.Store,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-httpErrCh:
		runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
	case obsErr := <-obsErrCh:
		runErr = oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(obsErr)
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	stopServer(logger, "observability", obsServer, cfg.HTTP.ShutdownTimeout)

	logger.Info("shutdown complete")
	return runErr
}

// stopServer stops s if it was started. A nil server is ignored.
func stopServer(logger *slog.Logger, name string, s *observability.Server, timeout time.Duration) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}
