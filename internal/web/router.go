// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/chms/chms/internal/access"
	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/observability"
)

// Authenticator logs identities in and out.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, string, error)
	Logout(ctx context.Context, token string) error
}

// Authorizer checks a session token against the roles a route allows.
type Authorizer interface {
	Authorize(ctx context.Context, token string, allowed ...auth.Role) (auth.Session, error)
}

// AccountService covers registration and identity administration.
type AccountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*auth.Identity, error)
	ListIdentities(ctx context.Context, role *auth.Role) ([]*auth.Identity, error)
	Deactivate(ctx context.Context, actor auth.Session, id ulid.ULID) error
	ListAudit(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEvent, error)
}

// Deps are the collaborators of the HTTP layer. Auth, Guard and Accounts are
// required. A nil Policy means access.DefaultRules, a nil Limiter disables
// login throttling and nil Metrics records nothing. Forwarding headers are
// ignored unless the peer is in TrustedProxies.
type Deps struct {
	Auth           Authenticator
	Guard          Authorizer
	Accounts       AccountService
	Policy         *access.RoutePolicy
	Limiter        *LoginLimiter
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	CookieSecure   bool
	TrustedProxies TrustedProxies
}

type handler struct {
	authn          Authenticator
	guard          Authorizer
	accounts       AccountService
	policy         *access.RoutePolicy
	limiter        *LoginLimiter
	metrics        *observability.Metrics
	logger         *slog.Logger
	cookieSecure   bool
	trustedProxies TrustedProxies
}

// NewRouter builds the CHMS HTTP handler.
//
// Middleware order: recover, client info, access log. Protected routes add
// the policy check on top.
func NewRouter(deps Deps) (http.Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("authenticator is required")
	case deps.Guard == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("guard is required")
	case deps.Accounts == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("account service is required")
	}

	h := &handler{
		authn:          deps.Auth,
		guard:          deps.Guard,
		accounts:       deps.Accounts,
		policy:         deps.Policy,
		limiter:        deps.Limiter,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		cookieSecure:   deps.CookieSecure,
		trustedProxies: deps.TrustedProxies,
	}
	if h.policy == nil {
		h.policy = access.MustRoutePolicy(access.DefaultRules())
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(h.recoverer)
	r.Use(h.withClient)
	r.Use(h.accessLog)

	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/register", h.register)

	r.Group(func(r chi.Router) {
		r.Use(h.authorize)

		r.Get("/me", h.me)
		r.Get("/mother/dashboard", h.dashboard)
		r.Get("/doctor/dashboard", h.dashboard)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/dashboard", h.dashboard)
			r.Get("/users", h.listUsers)
			r.Post("/users/{id}/deactivate", h.deactivateUser)
			r.Get("/audit-logs", h.listAudit)
		})
	})

	return r, nil
}
