package audit

import (
	"context"
	"database/sql"
)

// Schema creates the audit_events table. Rows are only ever inserted.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id         TEXT PRIMARY KEY,
  identity   TEXT NOT NULL,
  type       TEXT NOT NULL,
  ip_address TEXT NOT NULL DEFAULT '',
  call_id    TEXT NOT NULL DEFAULT '',
  message    TEXT NOT NULL DEFAULT '',
  metadata   TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_call_idx ON audit_events (call_id);
`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, identity, type, ip_address, call_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Identity,
		e.Type,
		e.IPAddress,
		e.CallID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
