// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by stores when an email is already registered,
// compared case-insensitively.
var ErrDuplicateEmail = errors.New("email already registered")

// Error codes surfaced to callers. The HTTP layer maps these to responses.
const (
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidInput          = "AUTH_INVALID_INPUT"
	CodeNotAuthenticated      = "AUTH_NOT_AUTHENTICATED"
	CodeForbidden             = "AUTH_FORBIDDEN"
	CodeDependencyUnavailable = "AUTH_DEPENDENCY_UNAVAILABLE"
	CodeSessionCreateFailed   = "AUTH_SESSION_CREATE_FAILED"
)

// invalidCredentialsMessage is the only message a failed login ever carries.
const invalidCredentialsMessage = "invalid email or password"

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf(invalidCredentialsMessage)
}

func errNotAuthenticated(reason string) error {
	return oops.Code(CodeNotAuthenticated).
		With("reason", reason).
		Errorf("authentication required")
}

func errForbidden(role Role, allowed []Role) error {
	return oops.Code(CodeForbidden).
		With("role", role.String()).
		With("allowed", roleNames(allowed)).
		Errorf("access denied")
}

func errDependency(operation string, err error) error {
	return oops.Code(CodeDependencyUnavailable).
		With("operation", operation).
		With("timeout", errors.Is(err, context.DeadlineExceeded)).
		Wrap(err)
}
