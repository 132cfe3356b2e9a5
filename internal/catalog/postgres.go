package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookbridge/searchd/pkg/errors"
	"github.com/bookbridge/searchd/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_revision (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	v  BIGINT NOT NULL
);
INSERT INTO catalog_revision (id, v) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS catalog_records (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	revision   BIGINT NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	attrs      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS catalog_records_revision_idx ON catalog_records (revision);

CREATE TABLE IF NOT EXISTS sync_cursor (
	name   TEXT PRIMARY KEY,
	cursor BIGINT NOT NULL
);
`

// PostgresStore is the production Store implementation backed by lib/pq.
// Revisions come from a single-row counter updated inside each write
// transaction. The row lock serialises writers, so commit order always
// matches revision order and ChangesSince can never observe revision N+1
// before N is visible. A sequence would not give that: nextval assigns
// outside transactional ordering, and a slow writer could commit a lower
// revision after the feed cursor has already moved past it.
type PostgresStore struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensuring catalog schema: %w", err)
	}
	return &PostgresStore{
		client: client,
		logger: slog.Default().With("component", "catalog-store"),
	}, nil
}

// Put persists the record inside one transaction: it advances the
// revision counter and upserts the row, so no partial field update is
// ever visible and the counter row stays locked until commit.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) (uint64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return 0, fmt.Errorf("marshaling attributes: %w", err)
	}

	var revision uint64
	err = s.client.InTx(ctx, func(tx *sql.Tx) error {
		if err := nextRevision(ctx, tx, &revision); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_records (id, kind, revision, deleted, attrs, updated_at)
			VALUES ($1, $2, $3, FALSE, $4, NOW())
			ON CONFLICT (id) DO UPDATE
			SET kind = EXCLUDED.kind, revision = EXCLUDED.revision,
			    deleted = FALSE, attrs = EXCLUDED.attrs, updated_at = NOW()`,
			rec.ID, string(rec.Kind), revision, attrs,
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	rec.Revision = revision
	return revision, nil
}

// Get returns the live record with the given ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.client.DB.QueryRowContext(ctx, `
		SELECT id, kind, revision, deleted, attrs, updated_at
		FROM catalog_records WHERE id = $1 AND NOT deleted`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, 404, "record %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", id, err)
	}
	return rec, nil
}

// Delete tombstones the record, bumping its revision so the deletion
// propagates through ChangesSince.
func (s *PostgresStore) Delete(ctx context.Context, id string) (uint64, error) {
	var revision uint64
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		if err := nextRevision(ctx, tx, &revision); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE catalog_records
			SET deleted = TRUE, revision = $2, updated_at = NOW()
			WHERE id = $1 AND NOT deleted`, id, revision)
		if err != nil {
			return fmt.Errorf("tombstoning record %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.Newf(errors.ErrNotFound, 404, "record %s", id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

// ChangesSince returns up to limit records with revision > cursor in
// revision-ascending order, tombstones included.
func (s *PostgresStore) ChangesSince(ctx context.Context, cursor uint64, limit int) ([]Record, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT id, kind, revision, deleted, attrs, updated_at
		FROM catalog_records
		WHERE revision > $1
		ORDER BY revision ASC
		LIMIT $2`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("querying changes since %d: %w", cursor, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning change row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating change rows: %w", err)
	}
	return records, nil
}

// Exists reports whether a live record with the given ID exists.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.client.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM catalog_records WHERE id = $1 AND NOT deleted)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking existence of %s: %w", id, err)
	}
	return exists, nil
}

// Count returns the number of live records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_records WHERE NOT deleted`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// CurrentRevision returns the latest committed revision without advancing
// the counter.
func (s *PostgresStore) CurrentRevision(ctx context.Context) (uint64, error) {
	var revision uint64
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT v FROM catalog_revision WHERE id = 1`).Scan(&revision)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading current revision: %w", err)
	}
	return revision, nil
}

// nextRevision bumps the revision counter inside tx. The UPDATE takes a
// row lock held until the transaction commits, which is what serialises
// revision assignment with commit order.
func nextRevision(ctx context.Context, tx *sql.Tx, revision *uint64) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE catalog_revision SET v = v + 1 WHERE id = 1 RETURNING v`).Scan(revision)
	if err != nil {
		return fmt.Errorf("advancing revision counter: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		kind      string
		attrs     []byte
		updatedAt time.Time
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Revision, &rec.Deleted, &attrs, &updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	rec.UpdatedAt = updatedAt
	if err := json.Unmarshal(attrs, &rec.Attrs); err != nil {
		return nil, fmt.Errorf("unmarshaling attributes: %w", err)
	}
	return &rec, nil
}

// PostgresCursorStore persists the synchronizer cursor in the sync_cursor
// table.
type PostgresCursorStore struct {
	client *postgres.Client
	name   string
}

// NewPostgresCursorStore creates a cursor store under the given logical
// name.
func NewPostgresCursorStore(client *postgres.Client, name string) *PostgresCursorStore {
	return &PostgresCursorStore{client: client, name: name}
}

// LoadCursor returns the persisted cursor, or 0 if none was ever saved.
func (c *PostgresCursorStore) LoadCursor(ctx context.Context) (uint64, error) {
	var cursor uint64
	err := c.client.DB.QueryRowContext(ctx,
		`SELECT cursor FROM sync_cursor WHERE name = $1`, c.name).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading sync cursor %s: %w", c.name, err)
	}
	return cursor, nil
}

// SaveCursor durably records the last fully-applied revision.
func (c *PostgresCursorStore) SaveCursor(ctx context.Context, cursor uint64) error {
	_, err := c.client.DB.ExecContext(ctx, `
		INSERT INTO sync_cursor (name, cursor) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET cursor = EXCLUDED.cursor`,
		c.name, cursor)
	if err != nil {
		return fmt.Errorf("saving sync cursor %s: %w", c.name, err)
	}
	return nil
}
