// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/chms/chms/internal/auth"
)

const identityColumns = `id, email, full_name, phone, password_hash, role, active, last_login, created_at, updated_at`

// IdentityRepository implements auth.CredentialStore using PostgreSQL.
type IdentityRepository struct {
	pool Querier
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool Querier) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Create stores a new identity. Returns auth.ErrDuplicateEmail when the
// email is already registered in any letter case.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		identity.ID.String(),
		identity.Email,
		identity.FullName,
		identity.Phone,
		identity.PasswordHash,
		identity.Role.String(),
		identity.Active,
		identity.LastLogin,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("IDENTITY_EMAIL_TAKEN").
			With("id", identity.ID.String()).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindByEmail implements auth.CredentialStore. The match is case-insensitive
// and served by the unique index on lower(email).
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE lower(email) = lower($1)
	`, email)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_EMAIL_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}
	return identity, nil
}

// FindByID implements auth.CredentialStore.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id.String())

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_ID_FAILED").
			With("operation", "get identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// UpdateLastLogin implements auth.CredentialStore.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities SET last_login = $2
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return false, oops.Code("IDENTITY_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last_login").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// UpdatePasswordHash implements auth.CredentialStore.
func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_PASSWORD_FAILED").
			With("operation", "update password_hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns identities ordered by email, optionally restricted to a role.
func (r *IdentityRepository) List(ctx context.Context, role *auth.Role) ([]*auth.Identity, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if role != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+identityColumns+`
			FROM identities
			WHERE role = $1
			ORDER BY lower(email)
		`, role.String())
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+identityColumns+`
			FROM identities
			ORDER BY lower(email)
		`)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_LIST_FAILED").
			With("operation", "list identities").
			Wrap(err)
	}
	defer rows.Close()

	var identities []*auth.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, oops.Code("IDENTITY_SCAN_FAILED").
				With("operation", "scan identity row").
				Wrap(err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("IDENTITY_ROWS_ERROR").
			With("operation", "iterate identity rows").
			Wrap(err)
	}
	return identities, nil
}

// SetActive sets the active flag. Returns false when no identity has the ID.
func (r *IdentityRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities SET active = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), active)
	if err != nil {
		return false, oops.Code("IDENTITY_SET_ACTIVE_FAILED").
			With("operation", "update active").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// scanIdentity scans one identity from a row or rows iterator.
// pgx.ErrNoRows is returned unchanged for callers to handle.
func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		idStr     string
		roleStr   string
		lastLogin *time.Time
		identity  auth.Identity
	)

	err := row.Scan(
		&idStr,
		&identity.Email,
		&identity.FullName,
		&identity.Phone,
		&identity.PasswordHash,
		&roleStr,
		&identity.Active,
		&lastLogin,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("IDENTITY_SCAN_FAILED").
			With("operation", "scan identity").
			Wrap(err)
	}

	identity.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse identity id").
			With("id", idStr).
			Wrap(err)
	}
	identity.Role, err = auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ROLE").
			With("id", idStr).
			Wrap(err)
	}
	identity.LastLogin = lastLogin
	return &identity, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*IdentityRepository)(nil)
