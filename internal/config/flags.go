// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package config

import "github.com/spf13/pflag"

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":    "database.url",
	"http-addr":       "http.addr",
	"cookie-secure":   "http.cookie_secure",
	"trusted-proxies": "http.trusted_proxies",
	"bcrypt-cost":     "auth.bcrypt_cost",
	"session-store":   "session.store",
	"idle-timeout":    "session.idle_timeout",
	"sweep-interval":  "session.sweep_interval",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"metrics-addr":    "metrics.addr",
}

// BindFlags registers the server flags on fs. Flag defaults mirror
// Defaults and only explicitly set flags override other sources.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	fs.String("http-addr", d.HTTP.Addr, "HTTP listen address")
	fs.Bool("cookie-secure", d.HTTP.CookieSecure, "mark the session cookie Secure")
	fs.StringSlice("trusted-proxies", nil, "reverse proxy CIDRs whose forwarding headers are trusted")
	fs.Int("bcrypt-cost", d.Auth.BcryptCost, "bcrypt cost for new password hashes")
	fs.String("session-store", d.Session.Store, "session store backend (postgres or memory)")
	fs.Duration("idle-timeout", d.Session.IdleTimeout, "session inactivity timeout")
	fs.Duration("sweep-interval", d.Session.SweepInterval, "expired session sweep interval")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}
