// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/pkg/errutil"
)

// LoginPath is where unauthenticated clients are sent.
const LoginPath = "/login"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Login   string `json:"login,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// writeError maps err's code to a status and a body that is safe to show.
// Unexpected errors are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := errutil.Code(err)
	switch code {
	case auth.CodeInvalidCredentials:
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "invalid_credentials",
			Message: "invalid email or password",
		})
	case auth.CodeNotAuthenticated:
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not_authenticated", Login: LoginPath})
	case auth.CodeForbidden:
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "access denied"})
	case auth.CodeInvalidInput, account.CodeInvalidInput:
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "invalid_input",
			Message: publicMessage(err),
			Field:   field(err),
		})
	case account.CodeEmailTaken:
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   "email_taken",
			Message: "email is already registered",
			Field:   "email",
		})
	case account.CodeNotFound:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	case auth.CodeDependencyUnavailable:
		errutil.LogError(logger.With("path", r.URL.Path), "dependency unavailable", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:   "unavailable",
			Message: "service temporarily unavailable",
		})
	default:
		errutil.LogError(logger.With("path", r.URL.Path), "request failed", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

func invalidInput(field, msg string) error {
	return oops.Code(account.CodeInvalidInput).With("field", field).Errorf("%s", msg)
}

// publicMessage is the message of the innermost oops error; validation errors
// are built from user-facing text.
func publicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return "invalid input"
}

func field(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	f, _ := oopsErr.Context()["field"].(string)
	return f
}
