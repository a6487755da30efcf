// Package pgindex is an optional Postgres-backed secondary index over
// the event log (SPEC_FULL.md domain-stack wiring of lib/pq): it
// gives get_by_hash/list a query path that does not require scanning
// the JSON-lines file on every call. The JSON-lines file remains the
// source of truth (spec §4.4); this index is a derived, rebuildable
// cache keyed the same way.
package pgindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/vcp-chain/auditlog/pkg/event"
)

// Index wraps a *sql.DB configured with the postgres driver.
type Index struct {
	db *sql.DB
}

// Open connects to Postgres via dsn and ensures the index schema
// exists.
func Open(dsn string) (*Index, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgindex: open: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS event_index (
	event_id     TEXT PRIMARY KEY,
	event_hash   TEXT UNIQUE NOT NULL,
	merkle_index BIGINT,
	timestamp    TIMESTAMPTZ NOT NULL,
	account_id   TEXT NOT NULL,
	system_id    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS event_index_timestamp_idx ON event_index (timestamp DESC);
`

func (idx *Index) ensureSchema(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("pgindex: ensure schema: %w", err)
	}
	return nil
}

// Upsert records (or updates) one event's index row; called by the
// chain assembler after a successful Store so the secondary index
// stays in lockstep with the JSON-lines log.
func (idx *Index) Upsert(ctx context.Context, e *event.Event) error {
	var merkleIdx *int64
	if e.MerkleIndex != nil {
		v := int64(*e.MerkleIndex)
		merkleIdx = &v
	}
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO event_index (event_id, event_hash, merkle_index, timestamp, account_id, system_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO UPDATE SET
			event_hash = EXCLUDED.event_hash,
			merkle_index = EXCLUDED.merkle_index
	`, e.EventID, e.EventHash, merkleIdx, e.Timestamp.Time(), e.AccountID, e.SystemID)
	if err != nil {
		return fmt.Errorf("pgindex: upsert %s: %w", e.EventID, err)
	}
	return nil
}

// EventIDByHash looks up the event_id whose event_hash matches hex,
// avoiding a full scan of the JSON-lines file.
func (idx *Index) EventIDByHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := idx.db.QueryRowContext(ctx, "SELECT event_id FROM event_index WHERE event_hash = $1", hash).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pgindex: lookup by hash: %w", err)
	}
	return id, nil
}

// ListEventIDs returns event IDs ordered by timestamp descending,
// paginated, mirroring EventStore.List's semantics (spec §4.4) but
// backed by an index instead of an in-memory sort.
func (idx *Index) ListEventIDs(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx,
		"SELECT event_id FROM event_index ORDER BY timestamp DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgindex: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgindex: scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying connection pool.
func (idx *Index) Close() error {
	return idx.db.Close()
}
