package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAction     = errors.New("invalid action")
	ErrActionDisabled    = errors.New("action disabled")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrAccountNotFound   = errors.New("margin account not found")
	ErrMarketNotFound    = errors.New("market not found")
	ErrWalletNotReady    = errors.New("wallet not connected")
	ErrSigningFailed     = errors.New("signing failed")
	ErrLockHeld          = errors.New("lock already held")
	ErrSliceOwned        = errors.New("state slice already has a writer")
	ErrUnknownPreference = errors.New("unknown preference key")

	// ErrUserCancelled is returned by the wallet or SDK boundary when the
	// user rejects the signing prompt.
	ErrUserCancelled = errors.New("user cancelled")
)

// TransactionFailedError is returned by the SDK boundary for any failure
// other than a user rejection.
type TransactionFailedError struct {
	Reason string
	Err    error
}

func (e *TransactionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction failed: %s: %v", e.Reason, e.Err)
	}
	return "transaction failed: " + e.Reason
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// DisabledError explains why an action cannot be submitted.
type DisabledError struct {
	Reason DisabledReason
}

func (e *DisabledError) Error() string { return "action disabled: " + string(e.Reason) }

func (e *DisabledError) Unwrap() error { return ErrActionDisabled }

// DisabledReason is a pre-submission message shown instead of a post-submit error.
type DisabledReason string

const (
	DisabledNone         DisabledReason = ""
	DisabledNoAccount    DisabledReason = "no account"
	DisabledNoPool       DisabledReason = "no pool"
	DisabledZeroAmount   DisabledReason = "zero amount"
	DisabledNoBalance    DisabledReason = "no balance"
	DisabledAboveMaxRisk DisabledReason = "above max risk"
	DisabledNoLiquidity  DisabledReason = "no liquidity"
	DisabledExceedsMax   DisabledReason = "exceeds max"
)
