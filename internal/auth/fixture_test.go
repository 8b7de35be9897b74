// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/authtest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type account struct {
	email    string
	password string
	role     auth.Role
	inactive bool
}

// fixture wires the real hasher and in-memory stores.
type fixture struct {
	svc        *auth.Service
	guard      *auth.Guard
	hasher     *auth.BcryptHasher
	identities *authtest.Identities
	sessions   *auth.MemorySessionStore
	audit      *authtest.AuditLog
	clock      *testClock
	logs       *bytes.Buffer
	byEmail    map[string]*auth.Identity
}

func newFixture(t *testing.T, accounts ...account) *fixture {
	t.Helper()

	f := &fixture{
		hasher:     newTestHasher(t),
		identities: authtest.NewIdentities(),
		sessions:   auth.NewMemorySessionStore(),
		audit:      &authtest.AuditLog{},
		clock:      newTestClock(),
		logs:       &bytes.Buffer{},
		byEmail:    make(map[string]*auth.Identity),
	}

	for _, a := range accounts {
		hash, err := f.hasher.Hash(a.password)
		require.NoError(t, err)
		identity, err := auth.NewIdentity(a.email, "Test User", "", hash, a.role)
		require.NoError(t, err)
		identity.Active = !a.inactive
		require.NoError(t, f.identities.Create(t.Context(), identity))
		f.byEmail[a.email] = identity
	}

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithClock(f.clock.Now),
		auth.WithIdleTimeout(30 * time.Minute),
	}

	var err error
	f.svc, err = auth.NewAuthService(f.identities, f.sessions, f.hasher, f.audit, opts...)
	require.NoError(t, err)
	f.guard, err = auth.NewGuard(f.sessions, opts...)
	require.NoError(t, err)
	return f
}

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level      string `json:"level"`
	Msg        string `json:"msg"`
	Operation  string `json:"operation"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
	IdentityID string `json:"identity_id"`
	SourceIP   string `json:"source_ip"`
	Code       string `json:"code"`
}

func parseLogs(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var entries []logEntry
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var e logEntry
		require.NoError(t, dec.Decode(&e))
		entries = append(entries, e)
	}
	return entries
}
