package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// DefaultRunLimit caps ListByTenant when no limit is given.
const DefaultRunLimit = 50

// RunRepo handles persistence for flow run history.
type RunRepo struct {
	Dialect Dialect
}

// Record inserts one run.
func (r *RunRepo) Record(ctx context.Context, db *sql.DB, run domain.RunRecord) error {
	const q = `INSERT INTO flow_runs (run_id, tenant_id, user_id, intent, status, ok, message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	ok := 0
	if run.OK {
		ok = 1
	}
	_, err := db.ExecContext(ctx, r.Dialect.rebind(q),
		run.RunID,
		run.TenantID,
		run.UserID,
		run.Intent,
		string(run.Status),
		ok,
		run.Message,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent runs for a tenant, newest first.
func (r *RunRepo) ListByTenant(ctx context.Context, db *sql.DB, tenantID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	const q = `SELECT run_id, tenant_id, user_id, intent, status, ok, message, created_at
FROM flow_runs
WHERE tenant_id = ?
ORDER BY created_at DESC, run_id DESC
LIMIT ?`

	rows, err := db.QueryContext(ctx, r.Dialect.rebind(q), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			run    domain.RunRecord
			status string
			ok     int
		)
		if err := rows.Scan(&run.RunID, &run.TenantID, &run.UserID, &run.Intent,
			&status, &ok, &run.Message, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		run.OK = ok == 1
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunStore binds a RunRepo to a database.
type RunStore struct {
	DB   *sql.DB
	Repo *RunRepo
}

// NewRunStore creates a RunStore for the given dialect.
func NewRunStore(db *sql.DB, dialect Dialect) *RunStore {
	return &RunStore{DB: db, Repo: &RunRepo{Dialect: dialect}}
}

// RecordRun stores one run.
func (s *RunStore) RecordRun(ctx context.Context, run domain.RunRecord) error {
	return s.Repo.Record(ctx, s.DB, run)
}

// ListRuns returns a tenant's recent runs.
func (s *RunStore) ListRuns(ctx context.Context, tenantID string, limit int) ([]domain.RunRecord, error) {
	return s.Repo.ListByTenant(ctx, s.DB, tenantID, limit)
}
