// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/authtest"
	"github.com/chms/chms/internal/observability"
	"github.com/chms/chms/internal/web"
)

const password = "Passw0rd!"

// fixture serves the real router over in-memory stores.
type fixture struct {
	srv        *httptest.Server
	identities *authtest.Identities
	sessions   *auth.MemorySessionStore
	audit      *authtest.AuditLog
	metrics    *observability.Metrics
	byEmail    map[string]*auth.Identity
}

type fixtureOption func(*web.Deps)

func withLimiter(l *web.LoginLimiter) fixtureOption {
	return func(d *web.Deps) { d.Limiter = l }
}

func withTrustedProxies(t *testing.T, cidrs ...string) fixtureOption {
	t.Helper()
	proxies, err := web.ParseTrustedProxies(cidrs)
	require.NoError(t, err)
	return func(d *web.Deps) { d.TrustedProxies = proxies }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		identities: authtest.NewIdentities(),
		sessions:   auth.NewMemorySessionStore(),
		audit:      &authtest.AuditLog{},
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		byEmail:    make(map[string]*auth.Identity),
	}
	for _, seed := range []struct {
		email string
		role  auth.Role
	}{
		{"mother@x.com", auth.RoleMother},
		{"doctor@x.com", auth.RoleDoctor},
		{"admin@x.com", auth.RoleAdmin},
	} {
		hash, err := hasher.Hash(password)
		require.NoError(t, err)
		identity, err := auth.NewIdentity(seed.email, "Test User", "", hash, seed.role)
		require.NoError(t, err)
		require.NoError(t, f.identities.Create(t.Context(), identity))
		f.byEmail[seed.email] = identity
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewAuthService(f.identities, f.sessions, hasher, f.audit, auth.WithLogger(logger))
	require.NoError(t, err)
	guard, err := auth.NewGuard(f.sessions, auth.WithLogger(logger))
	require.NoError(t, err)
	accounts, err := account.NewService(f.identities, f.sessions, hasher, f.audit, account.WithLogger(logger))
	require.NoError(t, err)

	deps := web.Deps{
		Auth:     svc,
		Guard:    guard,
		Accounts: accounts,
		Metrics:  f.metrics,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router, err := web.NewRouter(deps)
	require.NoError(t, err)

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

type response struct {
	status int
	header http.Header
	body   map[string]any
	raw    string
}

func (f *fixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: web.SessionCookieName, Value: token})
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), "body: %s", raw)
	}
	return out
}

func (f *fixture) get(t *testing.T, path, token string) response {
	t.Helper()
	return f.do(t, http.MethodGet, path, token, nil, "")
}

func (f *fixture) postJSON(t *testing.T, path, token string, v any) response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return f.do(t, http.MethodPost, path, token, strings.NewReader(string(b)), "application/json")
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()
	return f.do(t, http.MethodPost, path, "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// login returns the session cookie value for email.
func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	resp := f.postJSON(t, "/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.status, resp.raw)
	return sessionCookie(t, resp.header).Value
}

func sessionCookie(t *testing.T, h http.Header) *http.Cookie {
	t.Helper()
	for _, c := range (&http.Response{Header: h}).Cookies() {
		if c.Name == web.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", web.SessionCookieName)
	return nil
}

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) doWithHeader(t *testing.T, path, body, header, value string) response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}
