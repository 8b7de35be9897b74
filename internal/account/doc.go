// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package account manages CHMS identities on behalf of their owners and of
// administrators: self-registration, listing, deactivation, and audit review.
//
// Login and per-request authorization live in package auth; this package only
// creates and retires the identities those operations act on.
package account
