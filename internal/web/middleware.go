// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/observability"
	"github.com/chms/chms/pkg/errutil"
)

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.status = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// withClient stores the caller's address and agent for audit, logs and
// login throttling.
func (h *handler) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithClient(r.Context(), auth.Client{
			IP:        ClientIP(r, h.trustedProxies),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer turns a handler panic into a 500.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog logs each request and records request metrics under the matched
// route pattern.
func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		h.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", float64(elapsed.Microseconds())/1000,
			"source_ip", auth.ClientFromContext(r.Context()).IP,
		)
	})
}

// authorize admits the request when its session holds a role the route
// policy grants for the path. Paths the policy does not name admit nobody.
func (h *handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, ok := h.policy.Allowed(r.URL.Path)
		if !ok {
			h.logger.Debug("no access rule matches path", "path", r.URL.Path)
		}

		session, err := h.guard.Authorize(r.Context(), tokenFromRequest(r), allowed...)
		if err != nil {
			h.metrics.RecordAuthorization(authorizationOutcome(err))
			writeError(w, r, h.logger, err)
			return
		}
		h.metrics.RecordAuthorization(observability.OutcomeSuccess)
		next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session)))
	})
}

func authorizationOutcome(err error) string {
	switch errutil.Code(err) {
	case auth.CodeNotAuthenticated:
		return observability.OutcomeNotAuthenticated
	case auth.CodeForbidden:
		return observability.OutcomeForbidden
	case auth.CodeDependencyUnavailable:
		return observability.OutcomeUnavailable
	default:
		return observability.OutcomeError
	}
}
