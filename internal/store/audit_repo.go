package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/audit"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AuditRepo handles persistence for hash-chained AuditEvent rows.
type AuditRepo struct {
	Dialect Dialect
}

// TailTx reads a tenant's tail. With lock set on Postgres the tail row stays
// locked for the rest of the transaction.
func (r *AuditRepo) TailTx(ctx context.Context, q querier, tenantID string, lock bool) (audit.Tail, error) {
	query := r.Dialect.rebind(`SELECT seq, hash FROM audit_tails WHERE tenant_id = ?`)
	if lock {
		query += r.Dialect.forUpdate()
	}
	var t audit.Tail
	err := q.QueryRowContext(ctx, query, tenantID).Scan(&t.Seq, &t.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Tail{}, nil
	}
	if err != nil {
		return audit.Tail{}, fmt.Errorf("read audit tail: %w", err)
	}
	return t, nil
}

// AdvanceTailTx moves the tail from expected to ev. It is a compare-and-swap:
// zero affected rows means another writer got there first.
func (r *AuditRepo) AdvanceTailTx(ctx context.Context, tx *sql.Tx, expected audit.Tail, ev domain.AuditEvent) error {
	var (
		res sql.Result
		err error
	)
	if expected.Seq == 0 {
		const q = `INSERT INTO audit_tails (tenant_id, seq, hash) VALUES (?, ?, ?) ON CONFLICT (tenant_id) DO NOTHING`
		res, err = tx.ExecContext(ctx, r.Dialect.rebind(q), ev.TenantID, ev.Seq, ev.Hash)
	} else {
		const q = `UPDATE audit_tails SET seq = ?, hash = ? WHERE tenant_id = ? AND seq = ? AND hash = ?`
		res, err = tx.ExecContext(ctx, r.Dialect.rebind(q), ev.Seq, ev.Hash, ev.TenantID, expected.Seq, expected.Hash)
	}
	if err != nil {
		return fmt.Errorf("advance audit tail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance audit tail: %w", err)
	}
	if n != 1 {
		return domain.NewEngineError(domain.ErrChainIntegrity.Code,
			fmt.Sprintf("audit tail for tenant %s moved past seq %d", ev.TenantID, expected.Seq))
	}
	return nil
}

// InsertTx writes one event row.
func (r *AuditRepo) InsertTx(ctx context.Context, tx *sql.Tx, ev domain.AuditEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	const q = `INSERT INTO audit_events (tenant_id, seq, id, ts_iso, actor_user_id, role, type, details_json, prev_hash, hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, r.Dialect.rebind(q),
		ev.TenantID,
		ev.Seq,
		ev.ID,
		ev.TsISO,
		ev.ActorUserID,
		string(ev.Role),
		string(ev.Type),
		string(details),
		ev.PrevHash,
		ev.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByTenant returns a tenant's events ordered by sequence.
func (r *AuditRepo) ListByTenant(ctx context.Context, db *sql.DB, tenantID string) ([]domain.AuditEvent, error) {
	const q = `SELECT tenant_id, seq, id, ts_iso, actor_user_id, role, type, details_json, prev_hash, hash
FROM audit_events
WHERE tenant_id = ?
ORDER BY seq ASC`

	rows, err := db.QueryContext(ctx, r.Dialect.rebind(q), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			ev          domain.AuditEvent
			role, typ   string
			detailsJSON string
		)
		if err := rows.Scan(&ev.TenantID, &ev.Seq, &ev.ID, &ev.TsISO, &ev.ActorUserID,
			&role, &typ, &detailsJSON, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Role = domain.Role(role)
		ev.Type = domain.AuditEventType(typ)
		if ev.Details, err = decodeDetails(detailsJSON); err != nil {
			return nil, fmt.Errorf("decode details of %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// decodeDetails keeps numbers as json.Number so they re-serialize exactly.
func decodeDetails(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// AuditStore implements audit.Store over a SQL database.
type AuditStore struct {
	DB   *sql.DB
	Repo *AuditRepo
}

// NewAuditStore creates an AuditStore for the given dialect.
func NewAuditStore(db *sql.DB, dialect Dialect) *AuditStore {
	return &AuditStore{DB: db, Repo: &AuditRepo{Dialect: dialect}}
}

// Tail returns the tenant's current tail.
func (s *AuditStore) Tail(ctx context.Context, tenantID string) (audit.Tail, error) {
	return s.Repo.TailTx(ctx, s.DB, tenantID, false)
}

// Append re-reads the tail inside a transaction, verifies it is still
// expected, then advances it and inserts the event.
func (s *AuditStore) Append(ctx context.Context, ev domain.AuditEvent, expected audit.Tail) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := s.Repo.TailTx(ctx, tx, ev.TenantID, true)
	if err != nil {
		return err
	}
	if current != expected {
		return domain.NewEngineError(domain.ErrChainIntegrity.Code,
			fmt.Sprintf("audit tail for tenant %s is at seq %d, expected %d", ev.TenantID, current.Seq, expected.Seq))
	}
	if err := s.Repo.AdvanceTailTx(ctx, tx, expected, ev); err != nil {
		return err
	}
	if err := s.Repo.InsertTx(ctx, tx, ev); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

// List returns a tenant's events.
func (s *AuditStore) List(ctx context.Context, tenantID string) ([]domain.AuditEvent, error) {
	return s.Repo.ListByTenant(ctx, s.DB, tenantID)
}
