// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is a CHMS account: a mother, doctor, or administrator.
type Identity struct {
	ID           ulid.ULID
	Email        string
	FullName     string
	Phone        string
	PasswordHash string
	Role         Role
	Active       bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdentity creates a validated, active Identity.
// Field format rules beyond presence are enforced by the account service.
func NewIdentity(email, fullName, phone, passwordHash string, role Role) (*Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "email").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password_hash").Errorf("password hash cannot be empty")
	}
	if !role.IsValid() {
		return nil, oops.Code(CodeInvalidInput).With("field", "role").Errorf("role is invalid")
	}

	now := time.Now().UTC()
	return &Identity{
		ID:           ulid.Make(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Phone:        strings.TrimSpace(phone),
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail is the lookup form of an email address: trimmed and
// lower-cased. Stores compare against the lower-cased stored value, so
// "A@X.com" and "a@x.com" name the same identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialStore is the read side of identity persistence used by login.
// Lookups return (nil, nil) when nothing matches; an error always means the
// store itself failed.
type CredentialStore interface {
	// FindByEmail looks an identity up by email, case-insensitively.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindByID looks an identity up by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// UpdateLastLogin stamps the identity's last successful login.
	// Returns false when no identity has the given ID.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)

	// UpdatePasswordHash replaces the stored hash, used when re-hashing at a
	// higher cost.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
