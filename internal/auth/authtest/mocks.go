// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package authtest

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/chms/chms/internal/auth"
)

type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// MockCredentialStore is a testify mock of auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// NewMockCredentialStore creates a mock whose expectations are asserted at test cleanup.
func NewMockCredentialStore(t cleanupT) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByEmail implements auth.CredentialStore.
func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	ret := m.Called(ctx, email)
	identity, _ := ret.Get(0).(*auth.Identity)
	return identity, ret.Error(1)
}

// FindByID implements auth.CredentialStore.
func (m *MockCredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	ret := m.Called(ctx, id)
	identity, _ := ret.Get(0).(*auth.Identity)
	return identity, ret.Error(1)
}

// UpdateLastLogin implements auth.CredentialStore.
func (m *MockCredentialStore) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	ret := m.Called(ctx, id, at)
	return ret.Bool(0), ret.Error(1)
}

// UpdatePasswordHash implements auth.CredentialStore.
func (m *MockCredentialStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// MockSessionStore is a testify mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock whose expectations are asserted at test cleanup.
func NewMockSessionStore(t cleanupT) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create implements auth.SessionStore.
func (m *MockSessionStore) Create(ctx context.Context, session auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

// Get implements auth.SessionStore.
func (m *MockSessionStore) Get(ctx context.Context, tokenHash string) (auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	session, _ := ret.Get(0).(auth.Session)
	return session, ret.Error(1)
}

// Touch implements auth.SessionStore.
func (m *MockSessionStore) Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (auth.Session, error) {
	ret := m.Called(ctx, tokenHash, now, idle)
	session, _ := ret.Get(0).(auth.Session)
	return session, ret.Error(1)
}

// Delete implements auth.SessionStore.
func (m *MockSessionStore) Delete(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

// DeleteByIdentity implements auth.SessionStore.
func (m *MockSessionStore) DeleteByIdentity(ctx context.Context, identityID ulid.ULID) (int64, error) {
	ret := m.Called(ctx, identityID)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// DeleteExpired implements auth.SessionStore.
func (m *MockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// MockPasswordHasher is a testify mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted at test cleanup.
func NewMockPasswordHasher(t cleanupT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) bool {
	return m.Called(password, hash).Bool(0)
}

// NeedsRehash implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsRehash(hash string) bool {
	return m.Called(hash).Bool(0)
}

var (
	_ auth.CredentialStore = (*MockCredentialStore)(nil)
	_ auth.SessionStore    = (*MockSessionStore)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
)
