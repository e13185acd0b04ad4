package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ActionStore persists dispatched actions and their outcomes.
type ActionStore interface {
	Create(ctx context.Context, rec ActionRecord) error
	Complete(ctx context.Context, id string, outcome Outcome, txID, explorerURL, errMsg string) error
	GetByID(ctx context.Context, id string) (ActionRecord, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]ActionRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ActionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is one row of the action audit trail. Wallet and ActionID are
// empty for entries not tied to a dispatch, such as archive runs.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Wallet    string         `json:"wallet,omitempty"`
	ActionID  string         `json:"action_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists the append-only audit trail. Entries leave the store
// only through the archiver.
type AuditStore interface {
	Append(ctx context.Context, e AuditEntry) error
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
