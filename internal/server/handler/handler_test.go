package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/explorer"
	"github.com/alanyoungcy/marginterm/internal/platform/paper"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/service"
	"github.com/alanyoungcy/marginterm/internal/state"
)

const testWallet = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeDispatcher struct {
	got    domain.ActionRequest
	wallet string
	err    error
	recs   map[string]domain.ActionRecord
}

func (f *fakeDispatcher) Dispatch(_ context.Context, wallet string, req domain.ActionRequest) (domain.ActionRecord, error) {
	f.got, f.wallet = req, wallet
	if f.err != nil {
		return domain.ActionRecord{}, f.err
	}
	return domain.ActionRecord{ID: "a1", Wallet: wallet, Kind: req.Kind, Outcome: domain.OutcomeSuccess, TxID: "sig"}, nil
}

func (f *fakeDispatcher) History(_ context.Context, wallet string, _ domain.ListOpts) ([]domain.ActionRecord, error) {
	var out []domain.ActionRecord
	for _, r := range f.recs {
		if r.Wallet == wallet {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDispatcher) Get(_ context.Context, id string) (domain.ActionRecord, error) {
	r, ok := f.recs[id]
	if !ok {
		return domain.ActionRecord{}, domain.ErrNotFound
	}
	return r, nil
}

type memPrefs struct{ data map[string]map[string]string }

func (m *memPrefs) Load(_ context.Context, wallet string) (map[string]string, error) {
	return m.data[wallet], nil
}

func (m *memPrefs) Save(_ context.Context, wallet string, values map[string]string) error {
	m.data[wallet] = values
	return nil
}

type failingHistory struct{}

func (failingHistory) Candles(context.Context, string, string, time.Time, time.Time) ([]domain.Candle, error) {
	return nil, errors.New("upstream 502")
}

func (failingHistory) RecentTrades(context.Context, string) ([]domain.RecentTrade, error) {
	return nil, errors.New("upstream 502")
}

type countRefresher struct{ n int }

func (c *countRefresher) TriggerRefresh() { c.n++ }

type env struct {
	mux     *http.ServeMux
	store   *state.Store
	actions *fakeDispatcher
	session *service.SessionService
	refresh *countRefresher
	account string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	sdk := paper.New(nil, risk.DefaultThresholds, paper.DefaultSeed())
	_, err := sdk.CreateAccount(ctx, testWallet)
	require.NoError(t, err)
	accts, err := sdk.LoadAccounts(ctx, testWallet)
	require.NoError(t, err)
	require.NoError(t, sdk.Fund(accts[0].Address, "SOL", domain.TokenAmountFromTokens(decimal.NewFromInt(20), 9)))
	accts, err = sdk.LoadAccounts(ctx, testWallet)
	require.NoError(t, err)

	store := state.NewStore()
	pools, err := sdk.LoadPools(ctx)
	require.NoError(t, err)
	byName := make(map[string]domain.Pool, len(pools))
	for _, p := range pools {
		byName[p.Symbol] = p
	}
	store.Pools.MustClaim("test").Publish(byName)
	for i := range accts {
		accts[i] = risk.DefaultThresholds.WithMaxAmounts(byName, accts[i], map[string]domain.TokenAmount{
			"USDC": domain.TokenAmountFromTokens(decimal.NewFromInt(1000), 6),
		})
	}
	store.Accounts.MustClaim("test").Publish(accts)
	swapPools, _ := sdk.LoadSwapPools(ctx)
	store.SwapPools.MustClaim("test").Publish(swapPools)
	markets, _ := sdk.LoadMarkets(ctx)
	store.Markets.MustClaim("test").Publish(markets)
	book, _ := sdk.LoadOrderbook(ctx, "SOL/USDC")
	store.Orderbook.MustClaim("test").Publish(book)

	links, err := explorer.New(explorer.Devnet, explorer.SolanaExplorer, "")
	require.NoError(t, err)
	prefs := service.NewPreferenceService(&memPrefs{data: map[string]map[string]string{}}, store.Preferences.MustClaim("test"), domain.Preferences{}, links, discard())
	quotes := service.NewQuoteService(store, decimal.RequireFromString("0.005"))
	riskSvc := service.NewRiskService(store, quotes, risk.DefaultThresholds)
	session := service.NewSessionService(store, store.Session.MustClaim("test"), nil, prefs, discard())
	session.SelectWallet(ctx, testWallet)

	e := &env{
		mux:     http.NewServeMux(),
		store:   store,
		actions: &fakeDispatcher{recs: map[string]domain.ActionRecord{}},
		session: session,
		refresh: &countRefresher{},
		account: accts[0].Address,
	}
	stateH := NewStateHandler(store, nil, discard())
	riskH := NewRiskHandler(riskSvc, store, discard())
	swapH := NewSwapHandler(quotes, store, discard())
	hist := NewHistoryHandler(failingHistory{}, "1h", 24*time.Hour, discard())
	prefH := NewPreferenceHandler(prefs, discard())
	act := NewActionHandler(e.actions, session, store, discard())
	sess := NewSessionHandler(session, store, testWallet, discard())
	sys := NewSystemHandler(e.refresh, map[string]string{"mode": "terminal"}, map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.5")}, func() string { return "USD" }, discard())

	e.mux.HandleFunc("GET /api/pools", stateH.ListPools)
	e.mux.HandleFunc("GET /api/accounts", stateH.ListAccounts)
	e.mux.HandleFunc("GET /api/markets/{market}/orderbook", stateH.Orderbook)
	e.mux.HandleFunc("GET /api/accounts/{address}/risk", riskH.AccountRisk)
	e.mux.HandleFunc("POST /api/risk/project", riskH.Project)
	e.mux.HandleFunc("POST /api/swap/quote", swapH.Quote)
	e.mux.HandleFunc("GET /api/history/candles", hist.Candles)
	e.mux.HandleFunc("GET /api/history/trades", hist.Trades)
	e.mux.HandleFunc("GET /api/preferences", prefH.Get)
	e.mux.HandleFunc("PUT /api/preferences", prefH.Update)
	e.mux.HandleFunc("POST /api/actions", act.Dispatch)
	e.mux.HandleFunc("GET /api/actions", act.List)
	e.mux.HandleFunc("GET /api/actions/{id}", act.Get)
	e.mux.HandleFunc("GET /api/session", sess.Get)
	e.mux.HandleFunc("POST /api/session", sess.Update)
	e.mux.HandleFunc("POST /api/refresh", sys.Refresh)
	e.mux.HandleFunc("GET /api/format/currency", sys.Currency)
	e.mux.HandleFunc("GET /api/config", sys.Config)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListPoolsSorted(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[struct {
		Pools []domain.Pool `json:"pools"`
	}](t, rec)
	require.Len(t, out.Pools, 3)
	assert.Equal(t, []string{"BTC", "SOL", "USDC"}, []string{out.Pools[0].Symbol, out.Pools[1].Symbol, out.Pools[2].Symbol})
}

func TestListAccounts(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Accounts []domain.MarginAccount `json:"accounts"`
	}](t, rec)
	require.Len(t, out.Accounts, 1)
	assert.Equal(t, e.account, out.Accounts[0].Address)
}

func TestOrderbook(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/markets/SOL%2FUSDC/orderbook", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	assert.Equal(t, "live", out["source"])
	assert.InDelta(t, 150.0, out["mid"], 1e-9)

	rec = e.do(t, http.MethodGet, "/api/markets/BTC-PERP/orderbook", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountRisk(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/accounts/"+e.account+"/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[service.AccountRisk](t, rec)
	assert.Equal(t, domain.RiskLow, out.Level)

	rec = e.do(t, http.MethodGet, "/api/accounts/nope/risk", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectRisk(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/risk/project", map[string]any{
		"kind": "borrow", "account": e.account, "symbol": "USDC", "amount": "500",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[service.Preflight](t, rec)
	assert.Greater(t, out.Projection.Projected, out.Projection.Current)
	assert.Empty(t, out.Disabled)

	rec = e.do(t, http.MethodPost, "/api/risk/project", map[string]any{"kind": "launch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/risk/project", map[string]any{"kind": "deposit", "symbol": "DOGE", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/risk/project", map[string]any{"kind": "deposit", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwapQuote(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/swap/quote", map[string]any{"from": "SOL", "to": "USDC", "amount": "1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[service.SwapQuote](t, rec)
	assert.Equal(t, "SOL", out.From)
	assert.True(t, out.Output.Tokens().GreaterThan(decimal.NewFromInt(140)))
	assert.True(t, out.MinOutput.Cmp(out.Output) < 0)

	rec = e.do(t, http.MethodPost, "/api/swap/quote", map[string]any{"from": "SOL", "to": "BTC", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/swap/quote", map[string]any{"from": "SOL", "to": "USDC", "amount": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryIsBestEffort(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/history/candles?symbol=SOL", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbol":"SOL","resolution":"1h","candles":[]}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/history/trades?market=SOL/USDC", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"market":"SOL/USDC","trades":[]}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/history/candles", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferences(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPut, "/api/preferences", map[string]string{
		domain.PrefPreferredExplorer: string(explorer.Solscan),
		domain.PrefLightTheme:        "true",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/preferences", nil)
	out := decode[domain.Preferences](t, rec)
	assert.True(t, out.LightTheme)
	assert.Equal(t, string(explorer.Solscan), out.PreferredExplorer)

	rec = e.do(t, http.MethodPut, "/api/preferences", map[string]string{"colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchAction(t *testing.T) {
	e := newEnv(t)
	_, err := e.session.SelectAccount(e.account)
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/actions", map[string]any{"kind": "deposit", "symbol": "USDC", "amount": "12.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, testWallet, e.actions.wallet)
	assert.Equal(t, e.account, e.actions.got.Account, "account defaults to the session")
	assert.Equal(t, "12500000", e.actions.got.Amount.Lamports().String())

	rec = e.do(t, http.MethodPost, "/api/actions", map[string]any{
		"kind": "swap", "symbol": "SOL", "output_symbol": "USDC", "amount": "1", "min_output": "140", "slippage": "0.01",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, e.actions.got.MinOutput)
	assert.Equal(t, int32(6), e.actions.got.MinOutput.Decimals())
	require.NotNil(t, e.actions.got.Slippage)
	assert.Equal(t, "0.01", e.actions.got.Slippage.String())

	rec = e.do(t, http.MethodPost, "/api/actions", map[string]any{
		"kind": "place_order", "market": "SOL/USDC",
		"order": map[string]string{"side": "buy", "type": "limit", "price": "149.5", "amount": "2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, e.actions.got.Order)
	assert.Equal(t, "299", e.actions.got.Order.Size(6).String())
}

func TestDispatchErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"disabled", &domain.DisabledError{Reason: domain.DisabledAboveMaxRisk}, http.StatusUnprocessableEntity, "above max risk"},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, ""},
		{"lock held", domain.ErrLockHeld, http.StatusConflict, ""},
		{"no wallet", domain.ErrWalletNotReady, http.StatusConflict, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.actions.err = tt.err
			rec := e.do(t, http.MethodPost, "/api/actions", map[string]any{"kind": "deposit", "symbol": "USDC", "amount": "1"})
			assert.Equal(t, tt.status, rec.Code)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, decode[map[string]string](t, rec)["reason"])
			}
		})
	}
}

func TestActionHistory(t *testing.T) {
	e := newEnv(t)
	e.actions.recs["a1"] = domain.ActionRecord{ID: "a1", Wallet: testWallet, Kind: domain.ActionDeposit}

	rec := e.do(t, http.MethodGet, "/api/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Actions []domain.ActionRecord `json:"actions"`
	}](t, rec)
	require.Len(t, out.Actions, 1)

	rec = e.do(t, http.MethodGet, "/api/actions/a1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/actions/zz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionUpdate(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/session", map[string]any{
		"account": e.account, "pool": "USDC", "action": "deposit", "input": "5000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sess := decode[state.Session](t, rec)
	assert.Equal(t, "USDC", sess.Pool)
	assert.Equal(t, "1000", sess.TokenInput.Text, "clamped to the wallet balance")

	rec = e.do(t, http.MethodPost, "/api/session", map[string]any{"wallet": "someone-else"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/session", map[string]any{"pool": "DOGE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, e.refresh.n)

	rec = e.do(t, http.MethodGet, "/api/config", nil)
	assert.JSONEq(t, `{"mode":"terminal"}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/format/currency?value=1234.567", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "$1,234.56", decode[currencyResponse](t, rec).Formatted)

	rec = e.do(t, http.MethodGet, "/api/format/currency?value=1234.567&fiat=EUR&ceil=true", nil)
	assert.Equal(t, "€617.29", decode[currencyResponse](t, rec).Formatted)

	rec = e.do(t, http.MethodGet, "/api/format/currency?value=25000&abbrev=true&decimals=1", nil)
	assert.Equal(t, "$25.0K", decode[currencyResponse](t, rec).Formatted)

	rec = e.do(t, http.MethodGet, "/api/format/currency?value=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrPoolNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(explorer.ErrUnknownExplorer))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&domain.DisabledError{Reason: domain.DisabledNoBalance}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
