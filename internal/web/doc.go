// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package web exposes the authentication core over HTTP.
//
// Sessions travel in the chms_session cookie or an Authorization: Bearer
// header. Every route outside the public group is checked against the route
// policy and the access guard before its handler runs.
package web
