package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"webphone/pkg/utils"
)

// Schema creates the call_records table. Applied at startup when Postgres is configured.
const Schema = `
CREATE TABLE IF NOT EXISTS call_records (
  id               TEXT PRIMARY KEY,
  provider_call_id TEXT NOT NULL UNIQUE,
  identity         TEXT NOT NULL,
  direction        TEXT NOT NULL,
  from_number      TEXT NOT NULL DEFAULT '',
  to_number        TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  duration         INT  NOT NULL DEFAULT 0,
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS call_records_identity_created_idx ON call_records (identity, created_at);
`

// PostgresRepo stores records through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

// updateTimeout bounds the locked read-modify-write of one record.
const updateTimeout = 5 * time.Second

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Create(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_records (
  id, provider_call_id, identity, direction, from_number, to_number, status, duration, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (provider_call_id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.ProviderCallID,
		rec.Identity,
		rec.Direction,
		rec.From,
		rec.To,
		rec.Status,
		rec.DurationSeconds,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, providerCallID string, fn func(*Record) error) (Record, error) {
	var out Record
	err := utils.WithTx(ctx, r.db, updateTimeout, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so concurrent status callbacks for the same call serialize.
		const sel = `
SELECT id, provider_call_id, identity, direction, from_number, to_number, status, duration, created_at, updated_at
FROM call_records
WHERE provider_call_id = $1
FOR UPDATE
`
		rec, err := scanRecord(tx.QueryRowContext(ctx, sel, providerCallID))
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}

		const upd = `
UPDATE call_records
SET from_number = $2, to_number = $3, status = $4, duration = $5, updated_at = $6
WHERE provider_call_id = $1
`
		if _, err := tx.ExecContext(ctx, upd, rec.ProviderCallID, rec.From, rec.To, rec.Status, rec.DurationSeconds, rec.UpdatedAt); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, providerCallID string) (Record, error) {
	const q = `
SELECT id, provider_call_id, identity, direction, from_number, to_number, status, duration, created_at, updated_at
FROM call_records
WHERE provider_call_id = $1
`
	return scanRecord(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Identity != "" {
		add("identity = ?", f.Identity)
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < ?", f.To)
	}

	q := `
SELECT id, provider_call_id, identity, direction, from_number, to_number, status, duration, created_at, updated_at
FROM call_records`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	if err := row.Scan(
		&rec.ID,
		&rec.ProviderCallID,
		&rec.Identity,
		&rec.Direction,
		&rec.From,
		&rec.To,
		&rec.Status,
		&rec.DurationSeconds,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}
