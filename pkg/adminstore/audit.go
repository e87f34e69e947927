package adminstore

import (
	"context"
	"time"
)

// AuditRecord is one admin-surface mutation: every create/update/delete
// against an admin entity is recorded.
type AuditRecord struct {
	ID        int64
	Entity    string
	EntityID  string
	Action    string
	Actor     string
	Detail    map[string]any
	CreatedAt time.Time
}

// RecordAudit inserts an audit trail row. Failures are the caller's to
// decide whether to surface; the admin surface attaches an audit-write
// error to the gin context (c.Error) but does not fail the originating
// request.
func (s *Store) RecordAudit(ctx context.Context, rec AuditRecord) error {
	var raw []byte
	if rec.Detail != nil {
		var err error
		raw, err = marshalJSON(rec.Detail)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (entity, entity_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		rec.Entity, rec.EntityID, rec.Action, rec.Actor, raw)
	return err
}

// ListAudit returns the most recent audit records for an entity, newest first.
func (s *Store) ListAudit(ctx context.Context, entity string, limit int) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, entity_id, action, actor, detail, created_at
		FROM audit_records WHERE entity = $1 ORDER BY created_at DESC LIMIT $2`, entity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var raw []byte
		if err := rows.Scan(&r.ID, &r.Entity, &r.EntityID, &r.Action, &r.Actor, &raw, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := unmarshalJSON(raw, &r.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
