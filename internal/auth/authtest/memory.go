// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package authtest provides in-memory stores and mocks for tests of code
// built on package auth.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chms/chms/internal/auth"
)

// Identities is an in-memory identity store. Email lookup is
// case-insensitive, matching the PostgreSQL repository.
type Identities struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.Identity
}

// NewIdentities creates a store holding the given identities.
func NewIdentities(identities ...*auth.Identity) *Identities {
	s := &Identities{byID: make(map[ulid.ULID]auth.Identity)}
	for _, id := range identities {
		s.byID[id.ID] = *id
	}
	return s
}

// FindByEmail implements auth.CredentialStore.
func (s *Identities) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.TrimSpace(email)
	for _, identity := range s.byID {
		if strings.EqualFold(identity.Email, email) {
			found := identity
			return &found, nil
		}
	}
	return nil, nil
}

// FindByID implements auth.CredentialStore.
func (s *Identities) FindByID(_ context.Context, id ulid.ULID) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

// UpdateLastLogin implements auth.CredentialStore.
func (s *Identities) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	at = at.UTC()
	identity.LastLogin = &at
	s.byID[id] = identity
	return true, nil
}

// UpdatePasswordHash implements auth.CredentialStore.
func (s *Identities) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	s.byID[id] = identity
	return nil
}

// Create stores a new identity, rejecting a duplicate email.
func (s *Identities) Create(_ context.Context, identity *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if strings.EqualFold(existing.Email, identity.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	s.byID[identity.ID] = *identity
	return nil
}

// List returns identities ordered by email, optionally filtered by role.
func (s *Identities) List(_ context.Context, role *auth.Role) ([]*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Identity, 0, len(s.byID))
	for _, identity := range s.byID {
		if role != nil && identity.Role != *role {
			continue
		}
		found := identity
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// SetActive sets the active flag. Returns false when the identity is absent.
func (s *Identities) SetActive(_ context.Context, id ulid.ULID, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	identity.Active = active
	identity.UpdatedAt = time.Now().UTC()
	s.byID[id] = identity
	return true, nil
}

// AuditLog is an in-memory audit sink.
type AuditLog struct {
	mu     sync.Mutex
	events []auth.AuditEvent

	// Err, when set, is returned by Record and nothing is stored.
	Err error
}

// Record implements auth.AuditSink.
func (l *AuditLog) Record(_ context.Context, event auth.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.events = append(l.events, event)
	return nil
}

// Events returns the recorded events in recording order.
func (l *AuditLog) Events() []auth.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]auth.AuditEvent(nil), l.events...)
}

// Actions returns the action of each recorded event in order.
func (l *AuditLog) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	actions := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		actions = append(actions, ev.Action)
	}
	return actions
}

// List returns events matching filter, newest first.
func (l *AuditLog) List(_ context.Context, filter auth.AuditFilter) ([]auth.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []auth.AuditEvent
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if filter.Action != "" && ev.Action != filter.Action {
			continue
		}
		if filter.ActorID != nil && (ev.ActorID == nil || *ev.ActorID != *filter.ActorID) {
			continue
		}
		out = append(out, ev)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

var (
	_ auth.CredentialStore = (*Identities)(nil)
	_ auth.AuditSink       = (*AuditLog)(nil)
)
