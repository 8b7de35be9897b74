// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemorySessionStore keeps sessions in process memory. Sessions do not
// survive a restart and are not shared between replicas.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

var _ SessionStore = (*MemorySessionStore)(nil)

// Create implements SessionStore.
func (m *MemorySessionStore) Create(_ context.Context, session Session) error {
	if session.TokenHash == "" {
		return oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.TokenHash]; exists {
		return oops.Code("SESSION_DUPLICATE").
			With("session_id", session.ID.String()).
			Errorf("session token already in use")
	}
	m.sessions[session.TokenHash] = session
	return nil
}

// Get implements SessionStore.
func (m *MemorySessionStore) Get(_ context.Context, tokenHash string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Touch implements SessionStore.
func (m *MemorySessionStore) Touch(_ context.Context, tokenHash string, now time.Time, idle time.Duration) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenHash]
	if !ok || s.IsExpiredAt(now) {
		return Session{}, ErrNotFound
	}
	// Concurrent touches with out-of-order clocks never move the deadline back.
	if touched := s.Touched(now, idle); touched.ExpiresAt.After(s.ExpiresAt) {
		s = touched
		m.sessions[tokenHash] = s
	}
	return s, nil
}

// Delete implements SessionStore.
func (m *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, tokenHash)
	return nil
}

// DeleteByIdentity implements SessionStore.
func (m *MemorySessionStore) DeleteByIdentity(_ context.Context, identityID ulid.ULID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, s := range m.sessions {
		if s.IdentityID == identityID {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements SessionStore.
func (m *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, s := range m.sessions {
		if s.IsExpiredAt(now) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
