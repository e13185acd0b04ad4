package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// AuditStore implements domain.AuditStore on the audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append writes e. CreatedAt defaults to the database clock when zero.
func (s *AuditStore) Append(ctx context.Context, e domain.AuditEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	var createdAt *time.Time
	if !e.CreatedAt.IsZero() {
		createdAt = &e.CreatedAt
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, wallet, action_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		e.Event, e.Wallet, e.ActionID, detail, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append audit %s: %w", e.Event, err)
	}
	return nil
}

// ListBefore returns every entry created before the cutoff, oldest first.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event, wallet, action_id, detail, created_at FROM audit_log
		 WHERE created_at < $1 ORDER BY created_at ASC, id ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit before %s: %w", before.Format(time.RFC3339), err)
	}
	entries, err := pgx.CollectRows(rows, scanAudit)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit: %w", err)
	}
	return entries, nil
}

// DeleteBefore removes entries created before the cutoff.
func (s *AuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete audit before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanAudit(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e      domain.AuditEntry
		detail []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &e.Wallet, &e.ActionID, &detail, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return e, fmt.Errorf("audit %d detail: %w", e.ID, err)
		}
	}
	return e, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
