// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds every credential and session store call.
const DefaultStoreTimeout = 3 * time.Second

type options struct {
	logger       *slog.Logger
	idleTimeout  time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// Option configures a Service or Guard.
type Option func(*options) error

// WithLogger sets the logger. Passing nil is an error.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
		}
		o.logger = logger
		return nil
	}
}

// WithIdleTimeout sets the sliding inactivity timeout for sessions.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return oops.Code("AUTH_INVALID_CONFIG").With("idle_timeout", d.String()).Errorf("idle timeout must be positive")
		}
		o.idleTimeout = d
		return nil
	}
}

// WithStoreTimeout sets the deadline applied to each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return oops.Code("AUTH_INVALID_CONFIG").With("store_timeout", d.String()).Errorf("store timeout must be positive")
		}
		o.storeTimeout = d
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
		}
		o.now = now
		return nil
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		logger:       slog.Default(),
		idleTimeout:  DefaultIdleTimeout,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}
	return o, nil
}

func (o options) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.storeTimeout)
}
