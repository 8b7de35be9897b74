// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		assert.Regexp(t, pattern, name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
	assert.True(t, ups["000001_identities"])
}

func TestMigrationsFS_IdentityEmailIsCaseInsensitivelyUnique(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/000001_identities.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "UNIQUE INDEX identities_email_lower_idx ON identities (lower(email))")
}

func TestMigrationsFS_AuditActorIsNeverRewritten(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/000003_audit_logs.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "REFERENCES identities (id) ON DELETE RESTRICT")
	assert.NotContains(t, string(sql), "SET NULL")
}
