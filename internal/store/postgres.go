// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package store owns the PostgreSQL connection pool and the embedded
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultMaxConns        int32 = 10
	DefaultConnectAttempts       = 5
	DefaultConnectBackoff        = 500 * time.Millisecond
	maxConnectBackoff            = 5 * time.Second
)

type connectOptions struct {
	maxConns int32
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

// ConnectOption configures Connect.
type ConnectOption func(*connectOptions)

// WithMaxConns caps the pool size. Values below 1 are ignored.
func WithMaxConns(n int32) ConnectOption {
	return func(o *connectOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithConnectAttempts sets how many pings are tried before giving up.
func WithConnectAttempts(n uint64, backoff time.Duration) ConnectOption {
	return func(o *connectOptions) {
		if n > 0 {
			o.attempts = n
		}
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

// WithConnectLogger sets the logger for retry attempts.
func WithConnectLogger(l *slog.Logger) ConnectOption {
	return func(o *connectOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Connect opens a pgx pool and waits for the database to answer a ping,
// retrying with exponential backoff.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	o := connectOptions{
		maxConns: DefaultMaxConns,
		attempts: DefaultConnectAttempts,
		backoff:  DefaultConnectBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	cfg.MaxConns = o.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool, o); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingWithRetry(ctx context.Context, db pinger, o connectOptions) error {
	b := retry.NewExponential(o.backoff)
	b = retry.WithCappedDuration(maxConnectBackoff, b)
	b = retry.WithMaxRetries(o.attempts-1, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			o.logger.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
