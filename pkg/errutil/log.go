// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR. Oops errors contribute their code and context
// as separate attributes.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, errorAttrs(err)...)
}

// LogBestEffort logs the failure of a step whose error does not change the
// outcome of the surrounding operation.
func LogBestEffort(logger *slog.Logger, operation string, err error, attrs ...any) {
	args := append([]any{"operation", operation}, attrs...)
	logger.Warn("best-effort operation failed", append(args, errorAttrs(err)...)...)
}

func errorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
