// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Login limiter defaults.
const (
	DefaultLoginRate       = 1.0
	DefaultLoginBurst      = 5
	DefaultLimiterCleanup  = 5 * time.Minute
	minRetryAfterInSeconds = 1
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginLimiter throttles login attempts per client IP.
type LoginLimiter struct {
	limit   rate.Limit
	burst   int
	cleanup time.Duration

	mu       sync.Mutex
	limiters map[string]*ipLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLoginLimiter creates a limiter allowing perSecond attempts per IP with
// the given burst, and starts its background cleanup.
func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	if perSecond <= 0 {
		perSecond = DefaultLoginRate
	}
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	l := &LoginLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		cleanup:  DefaultLimiterCleanup,
		limiters: make(map[string]*ipLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether ip may attempt a login now.
func (l *LoginLimiter) Allow(ip string) bool {
	return l.get(ip).Allow()
}

// RetryAfter is the whole number of seconds until one more attempt is allowed.
func (l *LoginLimiter) RetryAfter() int {
	secs := int(math.Ceil(1.0 / float64(l.limit)))
	if secs < minRetryAfterInSeconds {
		secs = minRetryAfterInSeconds
	}
	return secs
}

// Len returns the number of tracked IPs.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *LoginLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.limiters[ip]; ok {
		entry.lastAccess = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[ip] = &ipLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (l *LoginLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// evictIdle drops IPs not seen for two cleanup intervals.
func (l *LoginLimiter) evictIdle(now time.Time) {
	ttl := 2 * l.cleanup

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > ttl {
			delete(l.limiters, ip)
		}
	}
}
