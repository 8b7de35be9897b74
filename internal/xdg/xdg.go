// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package xdg resolves XDG Base Directory paths for CHMS.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "chms"

// ConfigDir returns the CHMS config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}
