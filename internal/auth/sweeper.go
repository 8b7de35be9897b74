// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/chms/chms/pkg/errutil"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically deletes expired sessions. The guard already rejects
// expired sessions on sight; the sweeper reclaims the ones nobody presents
// again.
type Sweeper struct {
	sessions SessionStore
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	clock    func() time.Time
	onSweep  func(removed int64)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweeper's logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepTimeout bounds each DeleteExpired call. The default is
// DefaultStoreTimeout; non-positive values are ignored.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSweepClock replaces time.Now, for tests.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithSweepHook registers a callback invoked with the count after each
// successful sweep.
func WithSweepHook(fn func(removed int64)) SweeperOption {
	return func(s *Sweeper) {
		s.onSweep = fn
	}
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(sessions SessionStore, interval time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session store is required")
	}
	if interval <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("interval", interval.String()).
			Errorf("sweep interval must be positive")
	}
	s := &Sweeper{
		sessions: sessions,
		interval: interval,
		timeout:  DefaultStoreTimeout,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce deletes every session expired at the current time.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.sessions.DeleteExpired(ctx, s.clock())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").
			With("timeout", errors.Is(err, context.DeadlineExceeded)).
			Wrap(err)
	}
	if removed > 0 {
		s.logger.Info("purged expired sessions", "count", removed)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, nil
}

// Start begins periodic sweeping. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				errutil.LogError(s.logger, "session sweep failed", err)
			}
		}
	}
}
