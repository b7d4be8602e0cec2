package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Dialect selects placeholder style and locking clauses.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is appended to tail reads. SQLite serializes writers through its
// single connection, so it needs no row lock.
func (d Dialect) forUpdate() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

const schemaPostgresV1 = `
CREATE TABLE IF NOT EXISTS audit_events (
	tenant_id     TEXT NOT NULL,
	seq           BIGINT NOT NULL,
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
	seq       BIGINT NOT NULL,
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
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flow_runs_tenant ON flow_runs(tenant_id, created_at);
`

// NewPostgres opens a Postgres database and runs the schema migration.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "ping postgres", err)
	}

	if err := migrate(db, schemaPostgresV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}
