package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// ActionStore implements domain.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates a new ActionStore backed by the given connection pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Create inserts a pending action.
func (s *ActionStore) Create(ctx context.Context, rec domain.ActionRecord) error {
	const query = `
		INSERT INTO actions (
			id, wallet, kind, account, symbol, amount,
			outcome, tx_id, explorer_url, error, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Wallet, string(rec.Kind), rec.Account, rec.Symbol, rec.Amount,
		string(rec.Outcome), rec.TxID, rec.ExplorerURL, rec.Error,
		rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create action %s: %w", rec.ID, err)
	}
	return nil
}

// Complete records the terminal outcome of a pending action. Completing an
// action twice is refused so an outcome is never overwritten.
func (s *ActionStore) Complete(ctx context.Context, id string, outcome domain.Outcome, txID, explorerURL, errMsg string) error {
	const query = `
		UPDATE actions
		SET outcome = $2, tx_id = $3, explorer_url = $4, error = $5, completed_at = NOW()
		WHERE id = $1 AND outcome = $6`

	tag, err := s.pool.Exec(ctx, query, id, string(outcome), txID, explorerURL, errMsg, string(domain.OutcomePending))
	if err != nil {
		return fmt.Errorf("postgres: complete action %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: complete action %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const actionSelectCols = `id, wallet, kind, account, symbol, amount,
	outcome, tx_id, explorer_url, error, created_at, completed_at`

func scanAction(scanner interface{ Scan(dest ...any) error }) (domain.ActionRecord, error) {
	var rec domain.ActionRecord
	var kind, outcome string
	err := scanner.Scan(
		&rec.ID, &rec.Wallet, &kind, &rec.Account, &rec.Symbol, &rec.Amount,
		&outcome, &rec.TxID, &rec.ExplorerURL, &rec.Error, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.ActionRecord{}, err
	}
	rec.Kind = domain.ActionKind(kind)
	rec.Outcome = domain.Outcome(outcome)
	return rec, nil
}

func scanActions(rows pgx.Rows) ([]domain.ActionRecord, error) {
	defer rows.Close()
	var recs []domain.ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetByID returns one action, or domain.ErrNotFound.
func (s *ActionStore) GetByID(ctx context.Context, id string) (domain.ActionRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+actionSelectCols+` FROM actions WHERE id = $1`, id)
	rec, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ActionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ActionRecord{}, fmt.Errorf("postgres: get action %s: %w", id, err)
	}
	return rec, nil
}

// ListByWallet returns a wallet's actions, newest first.
func (s *ActionStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	query, args := listQuery(`SELECT `+actionSelectCols+` FROM actions WHERE wallet = $1`, []any{wallet}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions %s: %w", wallet, err)
	}
	recs, err := scanActions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan actions %s: %w", wallet, err)
	}
	return recs, nil
}

// ListBefore returns up to limit settled actions created before the cutoff,
// oldest first. Pending actions are never archived.
func (s *ActionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ActionRecord, error) {
	query := `SELECT ` + actionSelectCols + ` FROM actions
		WHERE created_at < $1 AND outcome <> $2
		ORDER BY created_at ASC`
	args := []any{before, string(domain.OutcomePending)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions before %s: %w", before.Format(time.RFC3339), err)
	}
	recs, err := scanActions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan actions: %w", err)
	}
	return recs, nil
}

// DeleteBefore removes settled actions created before the cutoff.
func (s *ActionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM actions WHERE created_at < $1 AND outcome <> $2`,
		before, string(domain.OutcomePending),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete actions before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ActionStore = (*ActionStore)(nil)
