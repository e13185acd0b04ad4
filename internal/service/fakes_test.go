package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/explorer"
	"github.com/alanyoungcy/marginterm/internal/platform/paper"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/state"
)

const testWallet = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func amt(v string, decimals int32) domain.TokenAmount {
	return domain.TokenAmountFromTokens(decimal.RequireFromString(v), decimals)
}

type memActions struct {
	mu   sync.Mutex
	recs map[string]domain.ActionRecord
}

func newMemActions() *memActions { return &memActions{recs: make(map[string]domain.ActionRecord)} }

func (m *memActions) Create(_ context.Context, rec domain.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *memActions) Complete(_ context.Context, id string, outcome domain.Outcome, txID, url, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Outcome, rec.TxID, rec.ExplorerURL, rec.Error, rec.CompletedAt = outcome, txID, url, errMsg, &now
	m.recs[id] = rec
	return nil
}

func (m *memActions) GetByID(_ context.Context, id string) (domain.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.ActionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memActions) ListByWallet(_ context.Context, wallet string, _ domain.ListOpts) ([]domain.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActionRecord
	for _, r := range m.recs {
		if r.Wallet == wallet {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memActions) ListBefore(context.Context, time.Time, int) ([]domain.ActionRecord, error) {
	return nil, nil
}

func (m *memActions) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memAudit struct {
	events  []string
	entries []domain.AuditEntry
}

func (m *memAudit) Append(_ context.Context, e domain.AuditEntry) error {
	m.events = append(m.events, e.Event)
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) ListBefore(context.Context, time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (m *memAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type stubLocks struct{ err error }

func (s stubLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	return func() {}, nil
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(_ context.Context, _ string, limit int, window time.Duration) (domain.RateDecision, error) {
	if !s.allow {
		return domain.RateDecision{RetryAfter: window}, nil
	}
	return domain.RateDecision{Allowed: true, Remaining: limit - 1}, nil
}

type recordNotifier struct{ got []domain.Notification }

func (r *recordNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.got = append(r.got, n)
	return nil
}

type countRefresher struct{ n int }

func (c *countRefresher) ScheduleRefresh() { c.n++ }

type memPrefs struct {
	data    map[string]map[string]string
	loadErr map[string]error
}

func (m *memPrefs) Load(_ context.Context, wallet string) (map[string]string, error) {
	if err := m.loadErr[wallet]; err != nil {
		return nil, err
	}
	return m.data[wallet], nil
}

func (m *memPrefs) Save(_ context.Context, wallet string, values map[string]string) error {
	if m.data == nil {
		m.data = make(map[string]map[string]string)
	}
	m.data[wallet] = values
	return nil
}

// fixture is a paper protocol with one funded account loaded into a store.
type fixture struct {
	sdk      *paper.SDK
	store    *state.Store
	actions  *memActions
	audit    *memAudit
	notes    *recordNotifier
	refresh  *countRefresher
	prefs    *PreferenceService
	quotes   *QuoteService
	risk     *RiskService
	account  string
	wallet   map[string]domain.TokenAmount
	accounts *state.Writer[[]domain.MarginAccount]
	pools    *state.Writer[map[string]domain.Pool]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		sdk:     paper.New(nil, risk.DefaultThresholds, paper.DefaultSeed()),
		store:   state.NewStore(),
		actions: newMemActions(),
		audit:   &memAudit{},
		notes:   &recordNotifier{},
		refresh: &countRefresher{},
		wallet:  map[string]domain.TokenAmount{"USDC": amt("1000", 6), "SOL": amt("5", 9)},
	}
	f.accounts = f.store.Accounts.MustClaim("test")
	f.pools = f.store.Pools.MustClaim("test")

	_, err := f.sdk.CreateAccount(ctx, testWallet)
	require.NoError(t, err)
	accts, err := f.sdk.LoadAccounts(ctx, testWallet)
	require.NoError(t, err)
	f.account = accts[0].Address
	require.NoError(t, f.sdk.Fund(f.account, "SOL", amt("20", 9)))

	swapPools, err := f.sdk.LoadSwapPools(ctx)
	require.NoError(t, err)
	f.store.SwapPools.MustClaim("test").Publish(swapPools)
	f.sync(t)

	links, err := explorer.New(explorer.Devnet, explorer.SolanaExplorer, "")
	require.NoError(t, err)
	f.prefs = NewPreferenceService(&memPrefs{}, f.store.Preferences.MustClaim("test"), domain.Preferences{}, links, discard())
	f.quotes = NewQuoteService(f.store, decimal.RequireFromString("0.005"))
	f.risk = NewRiskService(f.store, f.quotes, risk.DefaultThresholds)
	return f
}

// sync reloads pools and accounts the way the polling jobs do.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	pools, err := f.sdk.LoadPools(ctx)
	require.NoError(t, err)
	m := make(map[string]domain.Pool, len(pools))
	for _, p := range pools {
		m[p.Symbol] = p
	}
	f.pools.Publish(m)

	accts, err := f.sdk.LoadAccounts(ctx, testWallet)
	require.NoError(t, err)
	for i := range accts {
		accts[i] = risk.DefaultThresholds.WithMaxAmounts(m, accts[i], f.wallet)
	}
	f.accounts.Publish(accts)
}

func (f *fixture) service(locks domain.LockManager, limiter domain.RateLimiter) *ActionService {
	return NewActionService(ActionDeps{
		SDK:       f.sdk,
		Risk:      f.risk,
		Actions:   f.actions,
		Audit:     f.audit,
		Locks:     locks,
		Limiter:   limiter,
		Notifier:  f.notes,
		Refresher: f.refresh,
		Links:     f.prefs,
	}, ActionConfig{RateLimit: 5}, discard())
}
