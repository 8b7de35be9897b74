// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package auth is the CHMS authentication and session-authorization core.
//
// # Domain Types
//
// Identity, Session and AuditEvent are created with their constructors:
//   - NewIdentity - validated, active account record
//   - NewSession - session bound to an identity, with its role snapshotted
//   - NewAuditEvent - audit record stamped with the request client
//
// Role is a closed set (RoleMother, RoleDoctor, RoleAdmin). The zero Role is
// invalid and never authorizes anything.
//
// # Services
//
//   - Service - Login and Logout
//   - Guard - per-request Authorize with sliding expiry
//   - Sweeper - periodic purge of expired sessions
//
// Services are created with New* constructors that validate dependencies and
// accept Option values for the logger, idle timeout, store timeout and clock.
//
// # Errors
//
// Failures carry samber/oops codes: AUTH_INVALID_CREDENTIALS for every failed
// login, AUTH_NOT_AUTHENTICATED and AUTH_FORBIDDEN from the guard,
// AUTH_DEPENDENCY_UNAVAILABLE when a store fails or times out.
package auth
