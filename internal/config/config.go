// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package config loads CHMS server configuration.
//
// Sources are layered, later ones overriding earlier ones: built-in
// defaults, a YAML file, CHMS_* environment variables, DATABASE_URL, and
// finally command-line flags that were set explicitly.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/chms/chms/internal/xdg"
)

// EnvPrefix prefixes every configuration environment variable. A double
// underscore separates nesting levels: CHMS_SESSION__IDLE_TIMEOUT.
const EnvPrefix = "CHMS_"

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreMemory   = "memory"
)

// Config is the complete server configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Auth     AuthConfig     `koanf:"auth"`
	Session  SessionConfig  `koanf:"session"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatabaseConfig locates PostgreSQL.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	MaxConns        int32  `koanf:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// HTTPConfig configures the web listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	LoginRate       float64       `koanf:"login_rate"`
	LoginBurst      int           `koanf:"login_burst"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// TrustedProxies are CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For style headers name the real client.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// AuthConfig tunes credential checking.
type AuthConfig struct {
	BcryptCost   int           `koanf:"bcrypt_cost"`
	StoreTimeout time.Duration `koanf:"store_timeout"`
}

// SessionConfig tunes session lifetime and storage.
type SessionConfig struct {
	Store         string        `koanf:"store"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig places the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Defaults returns the configuration used when no source sets a value.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{MaxConns: 10, ConnectAttempts: 5},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			CookieSecure:    true,
			LoginRate:       1,
			LoginBurst:      5,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{BcryptCost: bcrypt.DefaultCost, StoreTimeout: 3 * time.Second},
		Session: SessionConfig{
			Store:         SessionStorePostgres,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Log:     LogConfig{Format: "json", Level: "info"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// DefaultFile is the config file read when none is named explicitly.
func DefaultFile() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load builds a Config. path names a YAML file; when empty, DefaultFile is
// read if it exists. flags may be nil; only flags registered with
// BindFlags and changed on the command line take effect.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		if err := k.Set("database.url", url); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "DATABASE_URL").Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	cfg.HTTP.TrustedProxies = splitList(cfg.HTTP.TrustedProxies)
	return &cfg, nil
}

// splitList flattens comma-separated entries, as environment variables
// deliver lists as one string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
	}
	return nil
}

// envKey maps CHMS_SESSION__IDLE_TIMEOUT to session.idle_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Database.URL == "":
		return invalid("database.url", "database.url is required (or set DATABASE_URL)")
	case c.Database.MaxConns < 1:
		return invalid("database.max_conns", "database.max_conns must be positive")
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http.addr is required")
	case c.HTTP.LoginRate <= 0:
		return invalid("http.login_rate", "http.login_rate must be positive")
	case c.HTTP.LoginBurst < 1:
		return invalid("http.login_burst", "http.login_burst must be at least 1")
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		return invalid("auth.bcrypt_cost", "auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	case c.Auth.StoreTimeout <= 0:
		return invalid("auth.store_timeout", "auth.store_timeout must be positive")
	case c.Session.IdleTimeout <= 0:
		return invalid("session.idle_timeout", "session.idle_timeout must be positive")
	case c.Session.SweepInterval <= 0:
		return invalid("session.sweep_interval", "session.sweep_interval must be positive")
	case c.Session.Store != SessionStorePostgres && c.Session.Store != SessionStoreMemory:
		return invalid("session.store", "session.store must be %q or %q, got %q",
			SessionStorePostgres, SessionStoreMemory, c.Session.Store)
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	for _, p := range c.HTTP.TrustedProxies {
		if !validProxy(p) {
			return invalid("http.trusted_proxies", "http.trusted_proxies entry %q is not a CIDR or IP address", p)
		}
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return invalid("log.level", "log.level %q is not a level", c.Log.Level)
	}
	return nil
}

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
