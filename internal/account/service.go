// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/pkg/errutil"
)

// Audit listing bounds.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// IdentityStore is the identity persistence the account service needs.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*auth.Identity, error)
	FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error)
	Create(ctx context.Context, identity *auth.Identity) error
	List(ctx context.Context, role *auth.Role) ([]*auth.Identity, error)
	SetActive(ctx context.Context, id ulid.ULID, active bool) (bool, error)
}

// SessionRevoker removes every session belonging to an identity.
type SessionRevoker interface {
	DeleteByIdentity(ctx context.Context, identityID ulid.ULID) (int64, error)
}

// AuditStore records and lists audit events.
type AuditStore interface {
	auth.AuditSink
	List(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEvent, error)
}

// RegisterRequest carries a self-registration form.
type RegisterRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// Service implements registration and identity administration.
type Service struct {
	identities   IdentityStore
	sessions     SessionRevoker
	hasher       auth.PasswordHasher
	audit        AuditStore
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewService creates an account service.
func NewService(identities IdentityStore, sessions SessionRevoker, hasher auth.PasswordHasher, audit AuditStore, opts ...Option) (*Service, error) {
	switch {
	case identities == nil:
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("identity store is required")
	case sessions == nil:
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("session revoker is required")
	case hasher == nil:
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("password hasher is required")
	case audit == nil:
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("audit store is required")
	}

	s := &Service{
		identities:   identities,
		sessions:     sessions,
		hasher:       hasher,
		audit:        audit,
		logger:       slog.Default(),
		storeTimeout: auth.DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Register validates req and creates an active MOTHER or DOCTOR identity.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*auth.Identity, error) {
	fullName, role, err := validateRegistration(req)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := s.withTimeout(ctx)
	existing, err := s.identities.FindByEmail(lookupCtx, auth.NormalizeEmail(req.Email))
	cancel()
	if err != nil {
		return nil, errDependency("find_identity_by_email", err)
	}
	if existing != nil {
		return nil, errEmailTaken(nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code(CodeInvalidInput).With("field", "password").Wrap(err)
	}

	identity, err := auth.NewIdentity(req.Email, fullName, req.Phone, hash, role)
	if err != nil {
		return nil, oops.Code(CodeInvalidInput).Wrap(err)
	}

	createCtx, cancel := s.withTimeout(ctx)
	err = s.identities.Create(createCtx, identity)
	cancel()
	switch {
	case isDuplicate(err):
		return nil, errEmailTaken(err)
	case err != nil:
		return nil, oops.Code(CodeCreateFailed).With("role", role.String()).Wrap(err)
	}

	actor := identity.ID
	s.record(ctx, auth.NewAuditEvent(ctx, auth.ActionRegister, &actor,
		fmt.Sprintf("User registered as %s", role)))
	s.logger.Info("identity registered", "identity_id", identity.ID.String(), "role", role.String())
	return identity, nil
}

func validateRegistration(req RegisterRequest) (string, auth.Role, error) {
	fullName := SanitizeName(req.FullName)
	switch {
	case fullName == "":
		return "", auth.Role{}, errInvalid("full_name", "full name is required")
	case !ValidName(fullName):
		return "", auth.Role{}, errInvalid("full_name", "full name may contain only letters and spaces")
	case !ValidEmail(req.Email):
		return "", auth.Role{}, errInvalid("email", "email address is invalid")
	case !ValidPhone(req.Phone):
		return "", auth.Role{}, errInvalid("phone", "phone number is invalid")
	case !PasswordAcceptable(req.Password):
		return "", auth.Role{}, errInvalid("password", PasswordStrength(req.Password))
	case req.Password != req.ConfirmPassword:
		return "", auth.Role{}, errInvalid("confirm_password", "passwords do not match")
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil || !role.In(auth.RoleMother, auth.RoleDoctor) {
		return "", auth.Role{}, errInvalid("role", "role must be MOTHER or DOCTOR")
	}
	return fullName, role, nil
}

// ListIdentities returns identities ordered by email, optionally restricted
// to one role.
func (s *Service) ListIdentities(ctx context.Context, role *auth.Role) ([]*auth.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	identities, err := s.identities.List(ctx, role)
	if err != nil {
		return nil, errDependency("list_identities", err)
	}
	return identities, nil
}

// Deactivate marks the identity inactive and revokes all of its sessions.
// An administrator cannot deactivate the identity behind their own session.
func (s *Service) Deactivate(ctx context.Context, actor auth.Session, id ulid.ULID) error {
	if actor.IdentityID == id {
		return errInvalid("id", "cannot deactivate your own account")
	}

	findCtx, cancel := s.withTimeout(ctx)
	target, err := s.identities.FindByID(findCtx, id)
	cancel()
	if err != nil {
		return errDependency("find_identity_by_id", err)
	}
	if target == nil {
		return oops.Code(CodeNotFound).With("identity_id", id.String()).Errorf("identity not found")
	}

	setCtx, cancel := s.withTimeout(ctx)
	_, err = s.identities.SetActive(setCtx, id, false)
	cancel()
	if err != nil {
		return errDependency("deactivate_identity", err)
	}

	revokeCtx, cancel := s.withTimeout(ctx)
	revoked, err := s.sessions.DeleteByIdentity(revokeCtx, id)
	cancel()
	if err != nil {
		return errDependency("revoke_sessions", err)
	}

	actorID := actor.IdentityID
	event := auth.NewAuditEvent(ctx, auth.ActionDeactivateUser, &actorID, fmt.Sprintf("active=false sessions_revoked=%d", revoked))
	event.SubjectID = id.String()
	event.BeforeValue = fmt.Sprintf("active=%t", target.Active)
	s.record(ctx, event)

	s.logger.Info("identity deactivated",
		"identity_id", id.String(),
		"actor_id", actorID.String(),
		"sessions_revoked", revoked)
	return nil
}

// ListAudit returns audit events newest first. The limit defaults to
// DefaultAuditLimit and is clamped to [1, MaxAuditLimit].
func (s *Service) ListAudit(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEvent, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	events, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, errDependency("list_audit", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultAuditLimit
	case limit < 1:
		return 1
	case limit > MaxAuditLimit:
		return MaxAuditLimit
	}
	return limit
}

func (s *Service) record(ctx context.Context, event auth.AuditEvent) {
	if err := s.audit.Record(ctx, event); err != nil {
		errutil.LogError(s.logger, "audit record failed", oops.With("action", event.Action).Wrap(err))
	}
}
