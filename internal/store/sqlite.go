// Package store provides SQL persistence for the audit chain and run history.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// schemaV1 defines the SQLite schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS audit_events (
	tenant_id     TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	id            TEXT NOT NULL UNIQUE,
	ts_iso        TEXT NOT NULL,
	actor_user_id TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL,
	details_json  TEXT NOT NULL DEFAULT '{}',
	prev_hash     TEXT NOT NULL,
	hash          TEXT NOT NULL,
	PRIMARY KEY (tenant_id, seq)
);

CREATE TABLE IF NOT EXISTS audit_tails (
	tenant_id TEXT PRIMARY KEY,
	seq       INTEGER NOT NULL,
	hash      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS flow_runs (
	run_id     TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	intent     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	ok         INTEGER NOT NULL DEFAULT 0,
	message    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flow_runs_tenant ON flow_runs(tenant_id, created_at);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db, schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB, schema string) error {
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return domain.WrapEngineError(domain.ErrSchemaMigration.Code, "apply schema v1", err)
	}
	return nil
}
