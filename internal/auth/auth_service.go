// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/chms/chms/pkg/errutil"
)

// Service provides login and logout.
type Service struct {
	identities CredentialStore
	sessions   SessionStore
	hasher     PasswordHasher
	audit      AuditSink
	opts       options
	dummyHash  string
}

// NewAuthService creates a new Service.
func NewAuthService(identities CredentialStore, sessions SessionStore, hasher PasswordHasher, audit AuditSink, opts ...Option) (*Service, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if audit == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("audit sink is required")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	dummy, err := dummyHashFor(hasher)
	if err != nil {
		return nil, err
	}
	return &Service{
		identities: identities,
		sessions:   sessions,
		hasher:     hasher,
		audit:      audit,
		opts:       o,
		dummyHash:  dummy,
	}, nil
}

// dummyPasswordHash is a well-formed bcrypt hash that matches no password.
// It is used with hashers that cannot produce a dummy of their own.
//
//nolint:gosec // G101: not a credential.
const dummyPasswordHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z.UO7dGXfTUSLCrMzOR6zbJK"

// dummySource is implemented by hashers that can make a hash at their own
// configured cost, matching the price of verifying a real one.
type dummySource interface {
	DummyHash() (string, error)
}

// dummyHashFor resolves the hash verified for unknown emails. It runs once
// at construction so no login pays for hashing.
func dummyHashFor(hasher PasswordHasher) (string, error) {
	src, ok := hasher.(dummySource)
	if !ok {
		return dummyPasswordHash, nil
	}
	hash, err := src.DummyHash()
	if err != nil {
		return "", oops.Code("AUTH_INVALID_CONFIG").With("operation", "dummy hash").Wrap(err)
	}
	return hash, nil
}

// Login verifies the credentials and opens a session.
// Returns the session, the plaintext token for the client, and any error.
//
// Unknown email, inactive identity, and wrong password all fail with the same
// AUTH_INVALID_CREDENTIALS error. A failing credential store fails with
// AUTH_DEPENDENCY_UNAVAILABLE instead.
func (s *Service) Login(ctx context.Context, email, password string) (Session, string, error) {
	client := ClientFromContext(ctx)

	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		s.logRejected(client, nil, "blank_input")
		return Session{}, "", errInvalidCredentials()
	}

	lookupCtx, cancel := s.opts.withStoreTimeout(ctx)
	identity, err := s.identities.FindByEmail(lookupCtx, NormalizeEmail(email))
	cancel()
	if err != nil {
		return Session{}, "", errDependency("find identity by email", err)
	}

	// Always verify so response time does not reveal whether the email exists.
	targetHash := s.dummyHash
	if identity != nil {
		targetHash = identity.PasswordHash
	}
	valid := s.hasher.Verify(password, targetHash)

	switch {
	case identity == nil:
		s.logRejected(client, nil, "unknown_email")
		return Session{}, "", errInvalidCredentials()
	case !identity.Active:
		s.logRejected(client, identity, "inactive")
		return Session{}, "", errInvalidCredentials()
	case !valid:
		s.logRejected(client, identity, "wrong_password")
		return Session{}, "", errInvalidCredentials()
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return Session{}, "", oops.Code(CodeSessionCreateFailed).
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.opts.now()
	session, err := NewSession(identity, tokenHash, now, s.opts.idleTimeout)
	if err != nil {
		return Session{}, "", oops.Code(CodeSessionCreateFailed).
			With("operation", "build session").
			Wrap(err)
	}

	createCtx, cancel := s.opts.withStoreTimeout(ctx)
	err = s.sessions.Create(createCtx, session)
	cancel()
	if err != nil {
		return Session{}, "", oops.Code(CodeSessionCreateFailed).
			With("operation", "persist session").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}

	s.afterLogin(ctx, identity, password, session)

	s.opts.logger.Info("login succeeded",
		"identity_id", identity.ID.String(),
		"role", identity.Role.String(),
		"session_id", session.ID.String(),
		"source_ip", client.IP)

	return session, token, nil
}

// afterLogin runs the best-effort steps of a successful login. Failures are
// logged and never undo the login.
func (s *Service) afterLogin(ctx context.Context, identity *Identity, password string, session Session) {
	updateCtx, cancel := s.opts.withStoreTimeout(ctx)
	updated, err := s.identities.UpdateLastLogin(updateCtx, identity.ID, session.CreatedAt)
	cancel()
	switch {
	case err != nil:
		s.warnBestEffort("update_last_login", identity, err)
	case !updated:
		s.warnBestEffort("update_last_login", identity, ErrNotFound)
	}

	if s.hasher.NeedsRehash(identity.PasswordHash) {
		s.rehash(ctx, identity, password)
	}

	id := identity.ID
	s.record(ctx, NewAuditEvent(ctx, ActionLogin, &id, "User logged in successfully"))
}

func (s *Service) rehash(ctx context.Context, identity *Identity, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.warnBestEffort("rehash_password", identity, err)
		return
	}
	rehashCtx, cancel := s.opts.withStoreTimeout(ctx)
	defer cancel()
	if err := s.identities.UpdatePasswordHash(rehashCtx, identity.ID, newHash); err != nil {
		s.warnBestEffort("rehash_password", identity, err)
	}
}

// Logout ends the session identified by token. It succeeds when there is no
// live session for the token, so repeating it is harmless.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := HashSessionToken(token)

	getCtx, cancel := s.opts.withStoreTimeout(ctx)
	session, err := s.sessions.Get(getCtx, tokenHash)
	cancel()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return errDependency("get session", err)
	}

	if !session.IsExpiredAt(s.opts.now()) {
		actor := session.IdentityID
		s.record(ctx, NewAuditEvent(ctx, ActionLogout, &actor, "User logged out"))
	}

	deleteCtx, cancel := s.opts.withStoreTimeout(ctx)
	defer cancel()
	if err := s.sessions.Delete(deleteCtx, tokenHash); err != nil {
		return errDependency("delete session", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, event AuditEvent) {
	if err := s.audit.Record(ctx, event); err != nil {
		errutil.LogError(s.opts.logger, "audit record failed",
			oops.With("action", event.Action).Wrap(err))
	}
}

func (s *Service) warnBestEffort(operation string, identity *Identity, err error) {
	errutil.LogBestEffort(s.opts.logger, operation, err, "identity_id", identity.ID.String())
}

func (s *Service) logRejected(client Client, identity *Identity, reason string) {
	attrs := []any{"reason", reason, "source_ip", client.IP}
	if identity != nil {
		attrs = append(attrs, "identity_id", identity.ID.String())
	}
	s.opts.logger.Warn("login rejected", attrs...)
}
