// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/postgres"
)

var sessionCols = []string{"id", "token_hash", "identity_id", "role", "email", "created_at", "last_seen_at", "expires_at"}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := auth.Session{
		ID:         ulid.Make(),
		TokenHash:  "hash",
		IdentityID: ulid.Make(),
		Role:       auth.RoleAdmin,
		Email:      "admin@x.com",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(30 * time.Minute),
	}

	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID.String(), "hash", s.IdentityID.String(), "ADMIN", "admin@x.com", now, now, s.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, postgres.NewSessionRepository(mock).Create(ctx, s))
}

func TestSessionRepository_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id, identityID := ulid.Make(), ulid.Make()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE token_hash = \$1`).
			WithArgs("hash").
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(id.String(), "hash", identityID.String(), "MOTHER", "a@x.com", now, now, now.Add(time.Minute)))

		got, err := postgres.NewSessionRepository(mock).Get(ctx, "hash")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, identityID, got.IdentityID)
		assert.Equal(t, auth.RoleMother, got.Role)
	})

	t.Run("missing is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).WithArgs("hash").WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := postgres.NewSessionRepository(mock).Get(ctx, "hash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database error is not ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).WithArgs("hash").WillReturnError(errors.New("connection reset"))

		_, err := postgres.NewSessionRepository(mock).Get(ctx, "hash")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_Touch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	idle := 30 * time.Minute
	id, identityID := ulid.Make(), ulid.Make()

	t.Run("live session is slid in one statement", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`UPDATE sessions\s+SET last_seen_at = GREATEST\(last_seen_at, \$2\),\s+expires_at = GREATEST\(expires_at, \$3\)\s+WHERE token_hash = \$1 AND expires_at >= \$2\s+RETURNING`).
			WithArgs("hash", now, now.Add(idle)).
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(id.String(), "hash", identityID.String(), "DOCTOR", "d@x.com", now.Add(-time.Hour), now, now.Add(idle)))

		got, err := postgres.NewSessionRepository(mock).Touch(ctx, "hash", now, idle)
		require.NoError(t, err)
		assert.Equal(t, now.Add(idle), got.ExpiresAt)
		assert.Equal(t, auth.RoleDoctor, got.Role)
	})

	t.Run("expired or missing session is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`UPDATE sessions`).
			WithArgs("hash", now, now.Add(idle)).
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := postgres.NewSessionRepository(mock).Touch(ctx, "hash", now, idle)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	identityID := ulid.Make()

	t.Run("delete missing session succeeds", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash`).
			WithArgs("hash").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		require.NoError(t, postgres.NewSessionRepository(mock).Delete(ctx, "hash"))
	})

	t.Run("delete by identity reports count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE identity_id`).
			WithArgs(identityID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		n, err := postgres.NewSessionRepository(mock).DeleteByIdentity(ctx, identityID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("delete expired uses supplied time", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE expires_at < \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		n, err := postgres.NewSessionRepository(mock).DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("delete error is wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions`).
			WithArgs(now).
			WillReturnError(errors.New("connection reset"))
		_, err := postgres.NewSessionRepository(mock).DeleteExpired(ctx, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}
