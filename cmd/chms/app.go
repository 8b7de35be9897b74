// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/chms/chms/internal/access"
	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/postgres"
	"github.com/chms/chms/internal/config"
	"github.com/chms/chms/internal/observability"
	"github.com/chms/chms/internal/web"
)

// app is the wired server: the HTTP handler plus the background workers
// whose lifetime the serve command owns.
type app struct {
	handler  http.Handler
	sessions auth.SessionStore
	sweeper  *auth.Sweeper
	limiter  *web.LoginLimiter
}

// newApp wires stores, services and the router. metrics may be nil.
func newApp(cfg *config.Config, db postgres.Querier, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}

	identities := postgres.NewIdentityRepository(db)
	audit := postgres.NewAuditRepository(db)

	var sessions auth.SessionStore
	switch cfg.Session.Store {
	case config.SessionStoreMemory:
		sessions = auth.NewMemorySessionStore()
	case config.SessionStorePostgres:
		sessions = postgres.NewSessionRepository(db)
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "session.store").
			Errorf("unknown session store %q", cfg.Session.Store)
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithIdleTimeout(cfg.Session.IdleTimeout),
		auth.WithStoreTimeout(cfg.Auth.StoreTimeout),
	}
	authService, err := auth.NewAuthService(identities, sessions, hasher, audit, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewGuard(sessions, opts...)
	if err != nil {
		return nil, err
	}
	accounts, err := account.NewService(identities, sessions, hasher, audit,
		account.WithLogger(logger),
		account.WithStoreTimeout(cfg.Auth.StoreTimeout),
	)
	if err != nil {
		return nil, err
	}

	sweeper, err := auth.NewSweeper(sessions, cfg.Session.SweepInterval,
		auth.WithSweepLogger(logger),
		auth.WithSweepTimeout(cfg.Auth.StoreTimeout),
		auth.WithSweepHook(metrics.RecordSwept),
	)
	if err != nil {
		return nil, err
	}

	proxies, err := web.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "http.trusted_proxies").Wrap(err)
	}

	limiter := web.NewLoginLimiter(cfg.HTTP.LoginRate, cfg.HTTP.LoginBurst)
	handler, err := web.NewRouter(web.Deps{
		Auth:           authService,
		Guard:          guard,
		Accounts:       accounts,
		Policy:         access.MustRoutePolicy(access.DefaultRules()),
		Limiter:        limiter,
		Metrics:        metrics,
		Logger:         logger,
		CookieSecure:   cfg.HTTP.CookieSecure,
		TrustedProxies: proxies,
	})
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	return &app{handler: handler, sessions: sessions, sweeper: sweeper, limiter: limiter}, nil
}

// close stops the background workers.
func (a *app) close() {
	a.sweeper.Stop()
	a.limiter.Stop()
}
