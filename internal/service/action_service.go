package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Refresher schedules a deferred re-poll of all chain-derived state.
type Refresher interface {
	ScheduleRefresh()
}

// TxLinker builds the block-explorer URL of a transaction.
type TxLinker interface {
	TxURL(txID string) (string, error)
}

// NotificationSender delivers one toast per terminal outcome.
type NotificationSender interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// ActionObserver records terminal action outcomes.
type ActionObserver interface {
	ObserveAction(kind, outcome string, d time.Duration)
}

// ActionConfig holds the per-wallet dispatch limits.
type ActionConfig struct {
	// LockTTL bounds how long a wallet's action lock may be held.
	LockTTL time.Duration
	// RateLimit actions are allowed per RateWindow per wallet.
	RateLimit  int
	RateWindow time.Duration
}

// ActionService wraps every user-initiated chain action in the
// pending -> {success, cancelled, failed} outcome machine. It refuses
// disabled actions before submission, serialises actions per wallet, persists
// the outcome and emits exactly one notification per terminal outcome.
type ActionService struct {
	sdk       domain.MarginSDK
	risk      *RiskService
	actions   domain.ActionStore
	audit     domain.AuditStore
	locks     domain.LockManager
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	notifier  NotificationSender
	refresher Refresher
	links     TxLinker
	observer  ActionObserver
	cfg       ActionConfig
	logger    *slog.Logger
}

// ActionDeps groups the collaborators of an ActionService. Audit, Locks,
// Limiter, Bus, Notifier, Refresher, Links and Observer may be nil.
type ActionDeps struct {
	SDK       domain.MarginSDK
	Risk      *RiskService
	Actions   domain.ActionStore
	Audit     domain.AuditStore
	Locks     domain.LockManager
	Limiter   domain.RateLimiter
	Bus       domain.SignalBus
	Notifier  NotificationSender
	Refresher Refresher
	Links     TxLinker
	Observer  ActionObserver
}

// NewActionService creates an ActionService.
func NewActionService(deps ActionDeps, cfg ActionConfig, logger *slog.Logger) *ActionService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &ActionService{
		sdk:       deps.SDK,
		risk:      deps.Risk,
		actions:   deps.Actions,
		audit:     deps.Audit,
		locks:     deps.Locks,
		limiter:   deps.Limiter,
		bus:       deps.Bus,
		notifier:  deps.Notifier,
		refresher: deps.Refresher,
		links:     deps.Links,
		observer:  deps.Observer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Dispatch validates and submits req on behalf of wallet. Refusals before
// submission (invalid, disabled, rate limited, another action in flight)
// return an error and leave no record. Once submitted, the returned record
// carries the terminal outcome and the error is nil whatever the outcome.
func (s *ActionService) Dispatch(ctx context.Context, wallet string, req domain.ActionRequest) (domain.ActionRecord, error) {
	if wallet == "" {
		return domain.ActionRecord{}, fmt.Errorf("action_service: %w", domain.ErrWalletNotReady)
	}
	if err := s.validate(req); err != nil {
		return domain.ActionRecord{}, err
	}

	pre, err := s.risk.Preflight(req)
	if err != nil {
		return domain.ActionRecord{}, fmt.Errorf("action_service: preflight: %w", err)
	}
	if pre.Disabled != domain.DisabledNone {
		return domain.ActionRecord{}, &domain.DisabledError{Reason: pre.Disabled}
	}
	if req.Kind == domain.ActionSwap && req.MinOutput == nil && pre.Quote != nil {
		minOut := pre.Quote.MinOutput
		req.MinOutput = &minOut
		if req.SwapPool == "" {
			req.SwapPool = pre.Quote.Pool
		}
	}

	if s.limiter != nil && s.cfg.RateLimit > 0 {
		d, err := s.limiter.Allow(ctx, "actions:"+wallet, s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			return domain.ActionRecord{}, fmt.Errorf("action_service: rate limiter: %w", err)
		}
		if !d.Allowed {
			return domain.ActionRecord{}, fmt.Errorf("action_service: %w: retry in %s",
				domain.ErrRateLimited, d.RetryAfter.Round(time.Second))
		}
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "action:"+wallet, s.cfg.LockTTL)
		if err != nil {
			return domain.ActionRecord{}, fmt.Errorf("action_service: acquire lock: %w", err)
		}
		defer unlock()
	}

	started := time.Now()
	rec := domain.ActionRecord{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      req.Kind,
		Account:   req.Account,
		Symbol:    req.Symbol,
		Amount:    req.Amount.String(),
		Outcome:   domain.OutcomePending,
		CreatedAt: started.UTC(),
	}
	if err := s.actions.Create(ctx, rec); err != nil {
		return domain.ActionRecord{}, fmt.Errorf("action_service: create record: %w", err)
	}
	s.publish(ctx, rec)

	txID, callErr := s.call(ctx, wallet, req)
	s.settle(ctx, &rec, txID, callErr)

	s.finish(ctx, rec, req, time.Since(started))
	return rec, nil
}

// validate checks the fields each kind needs.
func (s *ActionService) validate(req domain.ActionRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("action_service: %w: kind %q", domain.ErrInvalidAction, req.Kind)
	}
	switch req.Kind {
	case domain.ActionSwap:
		if req.OutputSymbol == "" || req.OutputSymbol == req.Symbol {
			return fmt.Errorf("action_service: %w: swap needs a distinct output token", domain.ErrInvalidAction)
		}
		if s := req.Slippage; s != nil && (s.IsNegative() || s.GreaterThan(decimal.NewFromInt(1))) {
			return fmt.Errorf("action_service: %w: slippage %s", domain.ErrInvalidAction, *req.Slippage)
		}
	case domain.ActionTransfer:
		if req.ToAccount == "" || req.ToAccount == req.Account {
			return fmt.Errorf("action_service: %w: transfer needs a distinct destination", domain.ErrInvalidAction)
		}
	case domain.ActionPlaceOrder:
		if req.Order == nil || req.Market == "" {
			return fmt.Errorf("action_service: %w: order and market required", domain.ErrInvalidOrder)
		}
		if err := req.Order.Validate(); err != nil {
			return fmt.Errorf("action_service: %w", err)
		}
	case domain.ActionCancelOrder:
		if req.OrderID == "" || req.Market == "" {
			return fmt.Errorf("action_service: %w: order id and market required", domain.ErrInvalidOrder)
		}
	}
	return nil
}

// call routes req to the SDK.
func (s *ActionService) call(ctx context.Context, wallet string, req domain.ActionRequest) (string, error) {
	switch req.Kind {
	case domain.ActionDeposit:
		return s.sdk.Deposit(ctx, req.Account, req.Symbol, req.Amount)
	case domain.ActionWithdraw:
		return s.sdk.Withdraw(ctx, req.Account, req.Symbol, req.Amount)
	case domain.ActionBorrow:
		return s.sdk.Borrow(ctx, req.Account, req.Symbol, req.Amount)
	case domain.ActionRepay:
		return s.sdk.Repay(ctx, req.Account, req.Symbol, req.Amount, false)
	case domain.ActionRepayFromWallet:
		return s.sdk.Repay(ctx, req.Account, req.Symbol, req.Amount, true)
	case domain.ActionSwap:
		minOut := domain.ZeroAmount(0)
		if req.MinOutput != nil {
			minOut = *req.MinOutput
		}
		return s.sdk.Swap(ctx, req.Account, req.SwapPool, req.Symbol, req.OutputSymbol, req.Amount, minOut)
	case domain.ActionTransfer:
		return s.sdk.Transfer(ctx, req.Account, req.ToAccount, req.Symbol, req.Amount)
	case domain.ActionPlaceOrder:
		return s.sdk.PlaceOrder(ctx, req.Account, req.Market, *req.Order)
	case domain.ActionCancelOrder:
		return s.sdk.CancelOrder(ctx, req.Account, req.Market, req.OrderID)
	case domain.ActionCreateAccount:
		return s.sdk.CreateAccount(ctx, wallet)
	}
	return "", fmt.Errorf("%w: kind %q", domain.ErrInvalidAction, req.Kind)
}

// settle moves rec to its terminal outcome. The decision uses only the typed
// errors returned by the SDK boundary.
func (s *ActionService) settle(ctx context.Context, rec *domain.ActionRecord, txID string, err error) {
	now := time.Now().UTC()
	rec.CompletedAt = &now

	var failed *domain.TransactionFailedError
	switch {
	case err == nil:
		rec.Outcome = domain.OutcomeSuccess
		rec.TxID = txID
		if s.links != nil {
			url, linkErr := s.links.TxURL(txID)
			if linkErr != nil {
				s.logger.WarnContext(ctx, "action_service: explorer link failed",
					slog.String("tx_id", txID),
					slog.String("error", linkErr.Error()),
				)
			}
			rec.ExplorerURL = url
		}
	case errors.Is(err, domain.ErrUserCancelled):
		rec.Outcome = domain.OutcomeCancelled
	case errors.As(err, &failed):
		rec.Outcome = domain.OutcomeFailed
		rec.Error = failed.Reason
	default:
		rec.Outcome = domain.OutcomeFailed
		rec.Error = err.Error()
	}
}

// finish runs the terminal side effects. All of them are best-effort.
func (s *ActionService) finish(ctx context.Context, rec domain.ActionRecord, req domain.ActionRequest, elapsed time.Duration) {
	if rec.Outcome == domain.OutcomeSuccess && s.refresher != nil {
		s.refresher.ScheduleRefresh()
	}

	if err := s.actions.Complete(ctx, rec.ID, rec.Outcome, rec.TxID, rec.ExplorerURL, rec.Error); err != nil {
		s.logger.WarnContext(ctx, "action_service: complete record failed",
			slog.String("action_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.audit != nil {
		if err := s.audit.Append(ctx, domain.AuditEntry{
			Event:    "action_" + string(rec.Outcome),
			Wallet:   rec.Wallet,
			ActionID: rec.ID,
			Detail: map[string]any{
				"kind":    string(rec.Kind),
				"account": rec.Account,
				"symbol":  rec.Symbol,
				"amount":  rec.Amount,
				"tx_id":   rec.TxID,
				"error":   rec.Error,
			},
		}); err != nil {
			s.logger.WarnContext(ctx, "action_service: audit log failed",
				slog.String("action_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, Notification(rec, req)); err != nil {
			s.logger.WarnContext(ctx, "action_service: notify failed",
				slog.String("action_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, rec)
	if s.observer != nil {
		s.observer.ObserveAction(string(rec.Kind), string(rec.Outcome), elapsed)
	}

	s.logger.InfoContext(ctx, "action_service: action settled",
		slog.String("action_id", rec.ID),
		slog.String("kind", string(rec.Kind)),
		slog.String("outcome", string(rec.Outcome)),
		slog.String("tx_id", rec.TxID),
		slog.Duration("elapsed", elapsed),
	)
}

func (s *ActionService) publish(ctx context.Context, rec domain.ActionRecord) {
	if s.bus == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelActions, raw); err != nil {
		s.logger.WarnContext(ctx, "action_service: publish failed",
			slog.String("action_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// History lists a wallet's past actions, newest first.
func (s *ActionService) History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	recs, err := s.actions.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("action_service: list: %w", err)
	}
	return recs, nil
}

// Get returns one action record.
func (s *ActionService) Get(ctx context.Context, id string) (domain.ActionRecord, error) {
	rec, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return domain.ActionRecord{}, fmt.Errorf("action_service: get %s: %w", id, err)
	}
	return rec, nil
}

var actionLabels = map[domain.ActionKind]string{
	domain.ActionDeposit:         "Deposit",
	domain.ActionWithdraw:        "Withdraw",
	domain.ActionBorrow:          "Borrow",
	domain.ActionRepay:           "Repay",
	domain.ActionRepayFromWallet: "Repay",
	domain.ActionSwap:            "Swap",
	domain.ActionTransfer:        "Transfer",
	domain.ActionPlaceOrder:      "Order",
	domain.ActionCancelOrder:     "Cancel order",
	domain.ActionCreateAccount:   "New account",
}

// Notification renders the toast for a terminal record.
func Notification(rec domain.ActionRecord, req domain.ActionRequest) domain.Notification {
	label := actionLabels[rec.Kind]
	n := domain.Notification{
		ActionID:  rec.ID,
		Kind:      rec.Kind,
		Outcome:   rec.Outcome,
		CreatedAt: time.Now().UTC(),
	}
	switch rec.Outcome {
	case domain.OutcomeSuccess:
		n.Title = label + " successful"
		n.Description = successDescription(rec, req)
		n.ExplorerURL = rec.ExplorerURL
	case domain.OutcomeCancelled:
		n.Title = label + " cancelled"
		n.Description = "The transaction was rejected in your wallet."
	default:
		n.Title = label + " failed"
		n.Description = "The transaction failed"
		if rec.Error != "" {
			n.Description += ": " + rec.Error
		}
		n.Description += "."
	}
	return n
}

func successDescription(rec domain.ActionRecord, req domain.ActionRequest) string {
	amount := strings.TrimSpace(rec.Amount + " " + rec.Symbol)
	switch rec.Kind {
	case domain.ActionDeposit:
		return "Deposited " + amount + "."
	case domain.ActionWithdraw:
		return "Withdrew " + amount + "."
	case domain.ActionBorrow:
		return "Borrowed " + amount + "."
	case domain.ActionRepay, domain.ActionRepayFromWallet:
		return "Repaid " + amount + "."
	case domain.ActionSwap:
		return "Swapped " + amount + " for " + req.OutputSymbol + "."
	case domain.ActionTransfer:
		return "Transferred " + amount + " to " + short(req.ToAccount) + "."
	case domain.ActionPlaceOrder:
		if req.Order != nil {
			return fmt.Sprintf("Placed %s %s order for %s at %s.", req.Order.Type, req.Order.Side,
				req.Order.Amount.Value, req.Order.Price.Value)
		}
		return "Order placed."
	case domain.ActionCancelOrder:
		return "Cancelled order " + short(req.OrderID) + "."
	case domain.ActionCreateAccount:
		return "Created a new margin account."
	}
	return ""
}

// short abbreviates a base58 address for display.
func short(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
