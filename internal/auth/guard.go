// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/chms/chms/pkg/errutil"
)

// Guard authorizes requests against live sessions.
//
// The role checked is the one snapshotted into the session at login; the
// credential store is never consulted. Deactivation revokes sessions
// directly, so it does not wait for the snapshot to go stale.
type Guard struct {
	sessions SessionStore
	opts     options
}

// NewGuard creates a Guard over the session store.
func NewGuard(sessions SessionStore, opts ...Option) (*Guard, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session store is required")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Guard{sessions: sessions, opts: o}, nil
}

// Authorize checks that token names a live session whose role is in allowed,
// and slides the session's inactivity deadline. An empty allowed set admits
// nobody.
//
// Fails with AUTH_NOT_AUTHENTICATED for a missing, unknown, or expired
// token, and with AUTH_FORBIDDEN for a live session of another role. A
// forbidden request still counts as activity.
func (g *Guard) Authorize(ctx context.Context, token string, allowed ...Role) (Session, error) {
	if token == "" {
		return Session{}, errNotAuthenticated("missing_token")
	}
	tokenHash := HashSessionToken(token)
	client := ClientFromContext(ctx)

	getCtx, cancel := g.opts.withStoreTimeout(ctx)
	current, err := g.sessions.Get(getCtx, tokenHash)
	cancel()
	if errors.Is(err, ErrNotFound) {
		return Session{}, errNotAuthenticated("unknown_session")
	}
	if err != nil {
		return Session{}, errDependency("get session", err)
	}

	now := g.opts.now()
	if current.IsExpiredAt(now) {
		g.deleteExpired(ctx, current)
		return Session{}, errNotAuthenticated("expired")
	}

	touchCtx, cancel := g.opts.withStoreTimeout(ctx)
	touched, err := g.sessions.Touch(touchCtx, tokenHash, now, g.opts.idleTimeout)
	cancel()
	if errors.Is(err, ErrNotFound) {
		// Logged out or expired between the read and the touch.
		return Session{}, errNotAuthenticated("expired")
	}
	if err != nil {
		return Session{}, errDependency("touch session", err)
	}

	if !touched.Role.In(allowed...) {
		g.opts.logger.Warn("access forbidden",
			"identity_id", touched.IdentityID.String(),
			"role", touched.Role.String(),
			"allowed", roleNames(allowed),
			"source_ip", client.IP)
		return Session{}, errForbidden(touched.Role, allowed)
	}

	return touched, nil
}

func (g *Guard) deleteExpired(ctx context.Context, session Session) {
	deleteCtx, cancel := g.opts.withStoreTimeout(ctx)
	defer cancel()
	if err := g.sessions.Delete(deleteCtx, session.TokenHash); err != nil {
		errutil.LogBestEffort(g.opts.logger, "delete_expired_session", err, "session_id", session.ID.String())
	}
}
