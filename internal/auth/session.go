// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32               // 32 bytes = 64 hex chars
	DefaultIdleTimeout = 30 * time.Minute // sliding inactivity window
)

// Session is an authenticated login. It is a value: stores hand out copies and
// every touch produces a new snapshot.
//
// Role and Email are copied from the Identity at login. A role change in the
// credential store takes effect on the next login, not mid-session.
type Session struct {
	ID         ulid.ULID
	TokenHash  string
	IdentityID ulid.ULID
	Role       Role
	Email      string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// NewSession creates a session for the identity, expiring idle after now.
func NewSession(identity *Identity, tokenHash string, now time.Time, idle time.Duration) (Session, error) {
	if identity == nil || identity.ID.Compare(ulid.ULID{}) == 0 {
		return Session{}, oops.Code("SESSION_INVALID_IDENTITY").Errorf("identity ID cannot be zero")
	}
	if !identity.Role.IsValid() {
		return Session{}, oops.Code("SESSION_INVALID_ROLE").
			With("identity_id", identity.ID.String()).
			Errorf("identity role is invalid")
	}
	if tokenHash == "" {
		return Session{}, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if idle <= 0 {
		return Session{}, oops.Code("SESSION_INVALID_EXPIRY").
			With("idle", idle.String()).
			Errorf("idle timeout must be positive")
	}

	now = now.UTC()
	return Session{
		ID:         ulid.Make(),
		TokenHash:  tokenHash,
		IdentityID: identity.ID,
		Role:       identity.Role,
		Email:      identity.Email,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(idle),
	}, nil
}

// IsExpiredAt returns true if the session's inactivity deadline has passed at t.
func (s Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Touched returns a copy of s with its deadline slid forward from now.
func (s Session) Touched(now time.Time, idle time.Duration) Session {
	now = now.UTC()
	s.LastSeenAt = now
	s.ExpiresAt = now.Add(idle)
	return s
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionStore persists sessions keyed by token hash. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session Session) error

	// Get returns the session for a token hash, expired or not.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, tokenHash string) (Session, error)

	// Touch slides the deadline of a live session to now+idle and returns the
	// updated snapshot. The check and the update are one atomic step per
	// token. Returns ErrNotFound when the session is absent or already
	// expired at now.
	Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (Session, error)

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByIdentity removes every session of an identity and returns the
	// count removed.
	DeleteByIdentity(ctx context.Context, identityID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions whose deadline passed before now and
	// returns the count removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
