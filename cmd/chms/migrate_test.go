// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chms/chms/internal/store"
	"github.com/chms/chms/pkg/errutil"
)

type fakeMigrator struct {
	calls  []string
	steps  int
	status store.Status
	err    error
	closed bool
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}
func (f *fakeMigrator) Status() (store.Status, error) { return f.status, nil }
func (f *fakeMigrator) Close() error                  { f.closed = true; return nil }

func useFakeMigrator(t *testing.T, fake *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	prev := openMigrator
	openMigrator = func(url string) (migrator, error) {
		gotURL = url
		return fake, nil
	}
	t.Cleanup(func() { openMigrator = prev })
	return &gotURL
}

func runMigrate(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate_Subcommands(t *testing.T) {
	status := store.Status{
		Version: 2,
		Applied: []store.Migration{{Version: 1, Name: "identities"}, {Version: 2, Name: "sessions"}},
		Pending: []store.Migration{{Version: 3, Name: "audit_logs"}},
	}

	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantSteps int
	}{
		{"up", []string{"up"}, []string{"up"}, 0},
		{"down one step by default", []string{"down"}, []string{"steps"}, -1},
		{"down several steps", []string{"down", "--steps", "2"}, []string{"steps"}, -2},
		{"down all", []string{"down", "--all"}, []string{"down"}, 0},
		{"status", []string{"status"}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfig(t)
			t.Setenv("DATABASE_URL", "postgres://chms@localhost/chms")
			fake := &fakeMigrator{status: status}
			gotURL := useFakeMigrator(t, fake)

			out, err := runMigrate(t, tt.args...)
			require.NoError(t, err)

			assert.Equal(t, "postgres://chms@localhost/chms", *gotURL)
			assert.Equal(t, tt.wantCalls, fake.calls)
			assert.Equal(t, tt.wantSteps, fake.steps)
			assert.True(t, fake.closed)
			assert.Contains(t, out, "Current version: 2")
			assert.Contains(t, out, "[x] 000001 identities")
			assert.Contains(t, out, "[ ] 000003 audit_logs")
		})
	}
}

func TestMigrate_DatabaseURLFlagOverridesEnv(t *testing.T) {
	isolateConfig(t)
	t.Setenv("DATABASE_URL", "postgres://env/chms")
	gotURL := useFakeMigrator(t, &fakeMigrator{})

	_, err := runMigrate(t, "status", "--database-url", "postgres://flag/chms")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/chms", *gotURL)
}

func TestMigrate_Errors(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		isolateConfig(t)
		useFakeMigrator(t, &fakeMigrator{})

		_, err := runMigrate(t, "up")
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("invalid steps", func(t *testing.T) {
		isolateConfig(t)
		t.Setenv("DATABASE_URL", "postgres://localhost/chms")
		useFakeMigrator(t, &fakeMigrator{})

		_, err := runMigrate(t, "down", "--steps", "0")
		errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	})

	t.Run("migration failure is returned and migrator closed", func(t *testing.T) {
		isolateConfig(t)
		t.Setenv("DATABASE_URL", "postgres://localhost/chms")
		fake := &fakeMigrator{err: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("syntax error"))}
		useFakeMigrator(t, fake)

		_, err := runMigrate(t, "up")
		errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
		assert.True(t, fake.closed)
	})
}
