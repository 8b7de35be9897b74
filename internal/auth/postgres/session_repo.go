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

const sessionColumns = `id, token_hash, identity_id, role, email, created_at, last_seen_at, expires_at`

// SessionRepository implements auth.SessionStore using PostgreSQL.
type SessionRepository struct {
	pool Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Querier) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create implements auth.SessionStore.
func (r *SessionRepository) Create(ctx context.Context, session auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.TokenHash,
		session.IdentityID.String(),
		session.Role.String(),
		session.Email,
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("identity_id", session.IdentityID.String()).
			Wrap(err)
	}
	return nil
}

// Get implements auth.SessionStore.
func (r *SessionRepository) Get(ctx context.Context, tokenHash string) (auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Session{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.Session{}, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Touch implements auth.SessionStore with a single conditional UPDATE, so
// the liveness check and the slide happen atomically in the database.
// GREATEST keeps a late-arriving touch from moving the deadline back.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET last_seen_at = GREATEST(last_seen_at, $2),
		    expires_at = GREATEST(expires_at, $3)
		WHERE token_hash = $1 AND expires_at >= $2
		RETURNING `+sessionColumns+`
	`, tokenHash, now, now.Add(idle))

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Session{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.Session{}, oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "touch session").
			Wrap(err)
	}
	return session, nil
}

// Delete implements auth.SessionStore.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	// No ErrNotFound if no rows deleted - logout is idempotent
	return nil
}

// DeleteByIdentity implements auth.SessionStore.
func (r *SessionRepository) DeleteByIdentity(ctx context.Context, identityID ulid.ULID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_IDENTITY_FAILED").
			With("operation", "delete sessions by identity").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired implements auth.SessionStore.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (auth.Session, error) {
	var (
		idStr, identityIDStr, roleStr string
		session                       auth.Session
	)

	err := row.Scan(
		&idStr,
		&session.TokenHash,
		&identityIDStr,
		&roleStr,
		&session.Email,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return auth.Session{}, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	if session.ID, err = ulid.Parse(idStr); err != nil {
		return auth.Session{}, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	if session.IdentityID, err = ulid.Parse(identityIDStr); err != nil {
		return auth.Session{}, oops.Code("SESSION_INVALID_IDENTITY_ID").
			With("operation", "parse identity id").
			With("identity_id", identityIDStr).
			Wrap(err)
	}
	if session.Role, err = auth.ParseRole(roleStr); err != nil {
		return auth.Session{}, oops.Code("SESSION_INVALID_ROLE").
			With("id", idStr).
			Wrap(err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.LastSeenAt = session.LastSeenAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionRepository)(nil)
