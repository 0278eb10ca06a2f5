package audit

import (
	"context"
	"database/sql"
	"errors"
)

// Schema creates the audit log table. Rows are only ever inserted.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	seq            BIGSERIAL,
	id             TEXT PRIMARY KEY,
	actor          TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL,
	resource_type  TEXT NOT NULL,
	resource_id    TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	metadata       JSONB,
	payload_digest TEXT NOT NULL DEFAULT '',
	ip             TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id, created_at);
`

// Repository writes audit logs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = normalize(entry)
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, actor, role, action, resource_type, resource_id, description,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.Description,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// ListByResource returns the history of a resource, oldest first.
func (r *Repository) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, actor, role, action, resource_type, resource_id, description,
	metadata, payload_digest, ip, user_agent, created_at
FROM audit_logs
WHERE resource_type = $1 AND resource_id = $2
ORDER BY created_at ASC, seq ASC
LIMIT $3`, resourceType, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var entry Entry
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Role, &entry.Action, &entry.ResourceType, &entry.ResourceID,
			&entry.Description, &metadata, &entry.PayloadDigest, &entry.IP, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			entry.Metadata = metadata
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
