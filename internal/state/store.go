package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Slice names, also used as the suffix of bus channels.
const (
	SlicePools          = "pools"
	SliceAccounts       = "accounts"
	SliceWalletBalances = "wallet_balances"
	SliceMarkets        = "markets"
	SliceOrderbook      = "orderbook"
	SliceOpenOrders     = "open_orders"
	SliceSwapPools      = "swap_pools"
	SliceCandles        = "candles"
	SliceTrades         = "trades"
	SliceSession        = "session"
	SlicePreferences    = "preferences"
)

// Session is the user's current selection and in-progress input.
type Session struct {
	Wallet     string             `json:"wallet"`
	Account    string             `json:"account"`
	Pool       string             `json:"pool"`
	Market     string             `json:"market"`
	SwapPool   string             `json:"swap_pool"`
	Action     domain.ActionKind  `json:"action"`
	TokenInput domain.AmountInput `json:"token_input"`
	Order      domain.OrderIntent `json:"order"`
}

// Store is the explicit application state.
type Store struct {
	Pools          *Slice[map[string]domain.Pool]
	Accounts       *Slice[[]domain.MarginAccount]
	WalletBalances *Slice[map[string]domain.WalletBalance]
	Markets        *Slice[[]domain.Market]
	Orderbook      *Slice[domain.OrderbookSnapshot]
	OpenOrders     *Slice[[]domain.OpenOrder]
	SwapPools      *Slice[[]domain.SwapPool]
	Candles        *Slice[[]domain.Candle]
	Trades         *Slice[[]domain.RecentTrade]
	Session        *Slice[Session]
	Preferences    *Slice[domain.Preferences]
}

// NewStore creates an empty store. Orderbook updates with identical levels
// are suppressed so readers do not flash unchanged rows.
func NewStore() *Store {
	return &Store{
		Pools:          NewSlice[map[string]domain.Pool](SlicePools, nil),
		Accounts:       NewSlice[[]domain.MarginAccount](SliceAccounts, nil),
		WalletBalances: NewSlice[map[string]domain.WalletBalance](SliceWalletBalances, nil),
		Markets:        NewSlice[[]domain.Market](SliceMarkets, nil),
		Orderbook:      NewSlice[domain.OrderbookSnapshot](SliceOrderbook, func(a, b domain.OrderbookSnapshot) bool {
			return a.SameLevels(b)
		}),
		OpenOrders:  NewSlice[[]domain.OpenOrder](SliceOpenOrders, nil),
		SwapPools:   NewSlice[[]domain.SwapPool](SliceSwapPools, nil),
		Candles:     NewSlice[[]domain.Candle](SliceCandles, nil),
		Trades:      NewSlice[[]domain.RecentTrade](SliceTrades, nil),
		Session:     NewSlice[Session](SliceSession, nil),
		Preferences: NewSlice[domain.Preferences](SlicePreferences, nil),
	}
}

// Account returns the margin account with address from the accounts slice.
func (s *Store) Account(address string) (domain.MarginAccount, bool) {
	accounts, _ := s.Accounts.Load()
	for _, a := range accounts {
		if a.Address == address {
			return a, true
		}
	}
	return domain.MarginAccount{}, false
}

// Pool returns the pool with symbol.
func (s *Store) Pool(symbol string) (domain.Pool, bool) {
	pools, _ := s.Pools.Load()
	p, ok := pools[symbol]
	return p, ok
}

// SwapPool returns the swap pool with address.
func (s *Store) SwapPool(address string) (domain.SwapPool, bool) {
	pools, _ := s.SwapPools.Load()
	for _, p := range pools {
		if p.Address == address {
			return p, true
		}
	}
	return domain.SwapPool{}, false
}

// WalletAmounts returns wallet balances keyed by symbol.
func (s *Store) WalletAmounts() map[string]domain.TokenAmount {
	balances, _ := s.WalletBalances.Load()
	out := make(map[string]domain.TokenAmount, len(balances))
	for sym, b := range balances {
		out[sym] = b.Amount
	}
	return out
}

// Change is a JSON-encoded slice update, as forwarded to the bus.
type Change struct {
	Slice   string          `json:"slice"`
	Version uint64          `json:"version"`
	At      time.Time       `json:"at"`
	Value   json.RawMessage `json:"value"`
}

// Watch forwards every slice update to fn until ctx is done. fn runs on one
// goroutine per slice.
func (s *Store) Watch(ctx context.Context, fn func(Change)) {
	forward(ctx, s.Pools, fn)
	forward(ctx, s.Accounts, fn)
	forward(ctx, s.WalletBalances, fn)
	forward(ctx, s.Markets, fn)
	forward(ctx, s.Orderbook, fn)
	forward(ctx, s.OpenOrders, fn)
	forward(ctx, s.SwapPools, fn)
	forward(ctx, s.Candles, fn)
	forward(ctx, s.Trades, fn)
	forward(ctx, s.Session, fn)
	forward(ctx, s.Preferences, fn)
}

func forward[T any](ctx context.Context, s *Slice[T], fn func(Change)) {
	ch := s.Subscribe(ctx)
	go func() {
		for u := range ch {
			raw, err := json.Marshal(u.Value)
			if err != nil {
				continue
			}
			fn(Change{Slice: u.Slice, Version: u.Version, At: u.At, Value: raw})
		}
	}()
}

// Snapshot is a point-in-time JSON view of every loaded slice.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any)
	put := func(name string, v any, ok bool) {
		if ok {
			out[name] = v
		}
	}
	pools, ok := s.Pools.Load()
	put(SlicePools, pools, ok)
	accounts, ok := s.Accounts.Load()
	put(SliceAccounts, accounts, ok)
	balances, ok := s.WalletBalances.Load()
	put(SliceWalletBalances, balances, ok)
	markets, ok := s.Markets.Load()
	put(SliceMarkets, markets, ok)
	book, ok := s.Orderbook.Load()
	put(SliceOrderbook, book, ok)
	orders, ok := s.OpenOrders.Load()
	put(SliceOpenOrders, orders, ok)
	swapPools, ok := s.SwapPools.Load()
	put(SliceSwapPools, swapPools, ok)
	candles, ok := s.Candles.Load()
	put(SliceCandles, candles, ok)
	trades, ok := s.Trades.Load()
	put(SliceTrades, trades, ok)
	session, ok := s.Session.Load()
	put(SliceSession, session, ok)
	prefs, ok := s.Preferences.Load()
	put(SlicePreferences, prefs, ok)
	return out
}
