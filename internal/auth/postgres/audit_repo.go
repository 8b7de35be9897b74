// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/chms/chms/internal/auth"
)

const auditColumns = `id, actor_identity_id, action, subject_table, subject_id, before_value, after_value, source_ip, user_agent, created_at`

// AuditRepository is the append-only audit log. It implements auth.AuditSink.
type AuditRepository struct {
	pool Querier
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool Querier) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record implements auth.AuditSink.
func (r *AuditRepository) Record(ctx context.Context, event auth.AuditEvent) error {
	var actorID *string
	if event.ActorID != nil {
		s := event.ActorID.String()
		actorID = &s
	}
	if event.ID.Compare(ulid.ULID{}) == 0 {
		event.ID = ulid.Make()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.ID.String(),
		actorID,
		event.Action,
		event.SubjectTable,
		event.SubjectID,
		event.BeforeValue,
		event.AfterValue,
		event.SourceIP,
		event.UserAgent,
		event.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert audit log").
			With("action", event.Action).
			Wrap(err)
	}
	return nil
}

// List returns events matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEvent, error) {
	var actorID *string
	if filter.ActorID != nil {
		s := filter.ActorID.String()
		actorID = &s
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE ($1 = '' OR action = $1)
		  AND ($2::text IS NULL OR actor_identity_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, filter.Action, actorID, limit, filter.Offset)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").
			With("operation", "list audit logs").
			Wrap(err)
	}
	defer rows.Close()

	var events []auth.AuditEvent
	for rows.Next() {
		var (
			idStr string
			actor *string
			ev    auth.AuditEvent
		)
		if err := rows.Scan(&idStr, &actor, &ev.Action, &ev.SubjectTable, &ev.SubjectID,
			&ev.BeforeValue, &ev.AfterValue, &ev.SourceIP, &ev.UserAgent, &ev.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").
				With("operation", "scan audit row").
				Wrap(err)
		}
		if ev.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("AUDIT_INVALID_ID").With("id", idStr).Wrap(err)
		}
		if actor != nil {
			parsed, err := ulid.Parse(*actor)
			if err != nil {
				return nil, oops.Code("AUDIT_INVALID_ACTOR_ID").With("actor_identity_id", *actor).Wrap(err)
			}
			ev.ActorID = &parsed
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_ROWS_ERROR").
			With("operation", "iterate audit rows").
			Wrap(err)
	}
	return events, nil
}

// Compile-time interface check.
var _ auth.AuditSink = (*AuditRepository)(nil)
