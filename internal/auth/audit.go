// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit actions recorded by this module.
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionRegister       = "REGISTER"
	ActionDeactivateUser = "DEACTIVATE_USER"
)

// SubjectIdentities is the subject table for identity events.
const SubjectIdentities = "identities"

// AuditEvent is one append-only audit log record.
type AuditEvent struct {
	ID           ulid.ULID
	ActorID      *ulid.ULID // nil for system actions
	Action       string
	SubjectTable string
	SubjectID    string
	BeforeValue  string
	AfterValue   string
	SourceIP     string
	UserAgent    string
	CreatedAt    time.Time
}

// NewAuditEvent creates an event for action by actor, stamped with the
// request client taken from ctx.
func NewAuditEvent(ctx context.Context, action string, actor *ulid.ULID, message string) AuditEvent {
	client := ClientFromContext(ctx)
	ev := AuditEvent{
		ID:         ulid.Make(),
		Action:     action,
		AfterValue: message,
		SourceIP:   client.IP,
		UserAgent:  client.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if actor != nil {
		id := *actor
		ev.ActorID = &id
		ev.SubjectTable = SubjectIdentities
		ev.SubjectID = id.String()
	}
	return ev
}

// AuditSink records audit events. Callers treat Record as fire-and-forget:
// a failure is logged and never fails the operation being audited.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditFilter selects audit events for listing. Zero fields match everything.
type AuditFilter struct {
	Action  string
	ActorID *ulid.ULID
	Limit   int
	Offset  int
}
