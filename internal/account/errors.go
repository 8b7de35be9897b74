// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package account

import (
	"errors"

	"github.com/samber/oops"

	"github.com/chms/chms/internal/auth"
)

// Error codes returned by the account service.
const (
	CodeInvalidInput = "ACCOUNT_INVALID_INPUT"
	CodeEmailTaken   = "ACCOUNT_EMAIL_TAKEN"
	CodeNotFound     = "ACCOUNT_NOT_FOUND"
	CodeCreateFailed = "ACCOUNT_CREATE_FAILED"
)

func errInvalid(field, msg string) error {
	return oops.Code(CodeInvalidInput).With("field", field).Errorf("%s", msg)
}

func errEmailTaken(err error) error {
	if err == nil {
		err = auth.ErrDuplicateEmail
	}
	return oops.Code(CodeEmailTaken).With("field", "email").Wrap(err)
}

func errDependency(operation string, err error) error {
	return oops.Code(auth.CodeDependencyUnavailable).With("operation", operation).Wrap(err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, auth.ErrDuplicateEmail)
}
