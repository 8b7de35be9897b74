// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import "context"

// Client describes the remote end of a request, for audit and security logs.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// ContextWithClient returns a copy of ctx carrying client.
func ContextWithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the client stored in ctx, or the zero Client.
func ClientFromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}
