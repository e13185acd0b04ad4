package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// live returns ctx.Err() so jobs can bail out before publishing.
func live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cycle superseded: %w", err)
	}
	return nil
}

// PoolLoader loads lending pools.
type PoolLoader interface {
	LoadPools(ctx context.Context) ([]domain.Pool, error)
}

// PoolJob refreshes the pools slice and the price cache.
type PoolJob struct {
	sdk    PoolLoader
	out    *state.Writer[map[string]domain.Pool]
	prices domain.PriceCache
	logger *slog.Logger
}

// NewPoolJob creates a PoolJob. prices may be nil.
func NewPoolJob(sdk PoolLoader, out *state.Writer[map[string]domain.Pool], prices domain.PriceCache, logger *slog.Logger) *PoolJob {
	return &PoolJob{sdk: sdk, out: out, prices: prices, logger: logger}
}

func (j *PoolJob) Name() string { return "pools" }

func (j *PoolJob) Poll(ctx context.Context, _ string) error {
	pools, err := j.sdk.LoadPools(ctx)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	m := make(map[string]domain.Pool, len(pools))
	for _, p := range pools {
		m[p.Symbol] = p
	}
	if err := live(ctx); err != nil {
		return err
	}
	j.out.Publish(m)

	if j.prices != nil {
		now := time.Now().UTC()
		for _, p := range pools {
			price, _ := p.TokenPrice.Float64()
			if err := j.prices.SetPrice(ctx, p.Symbol, price, now); err != nil {
				j.logger.WarnContext(ctx, "pipeline: cache pool price failed",
					slog.String("symbol", p.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// AccountLoader loads the margin accounts owned by a wallet.
type AccountLoader interface {
	LoadAccounts(ctx context.Context, owner string) ([]domain.MarginAccount, error)
}

// AccountJob refreshes the accounts of the selected wallet and recomputes
// every position's maximum tradeable amounts.
type AccountJob struct {
	sdk        AccountLoader
	store      *state.Store
	out        *state.Writer[[]domain.MarginAccount]
	thresholds risk.Thresholds
}

// NewAccountJob creates an AccountJob keyed by wallet address.
func NewAccountJob(sdk AccountLoader, store *state.Store, out *state.Writer[[]domain.MarginAccount], thresholds risk.Thresholds) *AccountJob {
	return &AccountJob{sdk: sdk, store: store, out: out, thresholds: thresholds}
}

func (j *AccountJob) Name() string { return "accounts" }

func (j *AccountJob) Poll(ctx context.Context, wallet string) error {
	if wallet == "" {
		if err := live(ctx); err != nil {
			return err
		}
		j.out.Publish(nil)
		return nil
	}
	accounts, err := j.sdk.LoadAccounts(ctx, wallet)
	if err != nil {
		return fmt.Errorf("load accounts for %s: %w", wallet, err)
	}

	pools, _ := j.store.Pools.Load()
	walletAmounts := j.store.WalletAmounts()
	out := make([]domain.MarginAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, j.thresholds.WithMaxAmounts(pools, a, walletAmounts))
	}
	slices.SortFunc(out, func(a, b domain.MarginAccount) int {
		if a.Seed != b.Seed {
			return a.Seed - b.Seed
		}
		return strings.Compare(a.Address, b.Address)
	})

	if err := live(ctx); err != nil {
		return err
	}
	j.out.Publish(out)
	return nil
}

// WalletJob refreshes token balances held by the selected wallet.
type WalletJob struct {
	reader domain.BalanceReader
	mints  map[string]string
	out    *state.Writer[map[string]domain.WalletBalance]
}

// NewWalletJob creates a WalletJob for the configured symbol->mint map.
func NewWalletJob(reader domain.BalanceReader, mints map[string]string, out *state.Writer[map[string]domain.WalletBalance]) *WalletJob {
	return &WalletJob{reader: reader, mints: mints, out: out}
}

func (j *WalletJob) Name() string { return "wallet_balances" }

func (j *WalletJob) Poll(ctx context.Context, wallet string) error {
	m := make(map[string]domain.WalletBalance)
	if wallet != "" {
		balances, err := j.reader.WalletBalances(ctx, wallet, j.mints)
		if err != nil {
			return fmt.Errorf("wallet balances for %s: %w", wallet, err)
		}
		for _, b := range balances {
			m[b.Symbol] = b
		}
	}
	if err := live(ctx); err != nil {
		return err
	}
	j.out.Publish(m)
	return nil
}

// MarketLoader loads order-book markets.
type MarketLoader interface {
	LoadMarkets(ctx context.Context) ([]domain.Market, error)
}

// MarketJob refreshes the market list.
type MarketJob struct {
	sdk MarketLoader
	out *state.Writer[[]domain.Market]
}

func NewMarketJob(sdk MarketLoader, out *state.Writer[[]domain.Market]) *MarketJob {
	return &MarketJob{sdk: sdk, out: out}
}

func (j *MarketJob) Name() string { return "markets" }

func (j *MarketJob) Poll(ctx context.Context, _ string) error {
	markets, err := j.sdk.LoadMarkets(ctx)
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	if err := live(ctx); err != nil {
		return err
	}
	j.out.Publish(markets)
	return nil
}

// OrderbookLoader loads a market's order book and the account's resting
// orders.
type OrderbookLoader interface {
	LoadOrderbook(ctx context.Context, market string) (domain.OrderbookSnapshot, error)
	LoadOpenOrders(ctx context.Context, account, market string) ([]domain.OpenOrder, error)
}

// OrderbookJob refreshes the selected market's book and open orders.
// Unchanged books are dropped by the slice, so readers see no update.
type OrderbookJob struct {
	sdk    OrderbookLoader
	store  *state.Store
	book   *state.Writer[domain.OrderbookSnapshot]
	orders *state.Writer[[]domain.OpenOrder]
	cache  domain.OrderbookCache
	logger *slog.Logger
}

// NewOrderbookJob creates an OrderbookJob keyed by market. cache may be nil.
func NewOrderbookJob(sdk OrderbookLoader, store *state.Store, book *state.Writer[domain.OrderbookSnapshot], orders *state.Writer[[]domain.OpenOrder], cache domain.OrderbookCache, logger *slog.Logger) *OrderbookJob {
	return &OrderbookJob{sdk: sdk, store: store, book: book, orders: orders, cache: cache, logger: logger}
}

func (j *OrderbookJob) Name() string { return "orderbook" }

func (j *OrderbookJob) Poll(ctx context.Context, market string) error {
	if market == "" {
		return nil
	}
	snap, err := j.sdk.LoadOrderbook(ctx, market)
	if err != nil {
		return fmt.Errorf("load orderbook %s: %w", market, err)
	}

	var open []domain.OpenOrder
	session, _ := j.store.Session.Load()
	if session.Account != "" {
		open, err = j.sdk.LoadOpenOrders(ctx, session.Account, market)
		if err != nil {
			return fmt.Errorf("load open orders %s: %w", market, err)
		}
	}

	if err := live(ctx); err != nil {
		return err
	}
	changed := j.book.Publish(snap)
	j.orders.Publish(open)

	if changed && j.cache != nil {
		if err := j.cache.SetSnapshot(ctx, market, snap); err != nil {
			j.logger.WarnContext(ctx, "pipeline: cache orderbook failed",
				slog.String("market", market),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// SwapPoolLoader loads exchange pools.
type SwapPoolLoader interface {
	LoadSwapPools(ctx context.Context) ([]domain.SwapPool, error)
}

// SwapPoolJob refreshes swap-pool reserves used for quoting.
type SwapPoolJob struct {
	sdk SwapPoolLoader
	out *state.Writer[[]domain.SwapPool]
}

func NewSwapPoolJob(sdk SwapPoolLoader, out *state.Writer[[]domain.SwapPool]) *SwapPoolJob {
	return &SwapPoolJob{sdk: sdk, out: out}
}

func (j *SwapPoolJob) Name() string { return "swap_pools" }

func (j *SwapPoolJob) Poll(ctx context.Context, _ string) error {
	pools, err := j.sdk.LoadSwapPools(ctx)
	if err != nil {
		return fmt.Errorf("load swap pools: %w", err)
	}
	if err := live(ctx); err != nil {
		return err
	}
	j.out.Publish(pools)
	return nil
}

// HistoryJob refreshes candles and recent trades for the selected market.
// Both endpoints are best-effort: a failure keeps the previous state.
type HistoryJob struct {
	client     domain.HistoryClient
	candles    *state.Writer[[]domain.Candle]
	trades     *state.Writer[[]domain.RecentTrade]
	resolution string
	lookback   time.Duration
	logger     *slog.Logger
}

// NewHistoryJob creates a HistoryJob keyed by market symbol.
func NewHistoryJob(client domain.HistoryClient, candles *state.Writer[[]domain.Candle], trades *state.Writer[[]domain.RecentTrade], resolution string, lookback time.Duration, logger *slog.Logger) *HistoryJob {
	return &HistoryJob{client: client, candles: candles, trades: trades, resolution: resolution, lookback: lookback, logger: logger}
}

func (j *HistoryJob) Name() string { return "history" }

func (j *HistoryJob) Poll(ctx context.Context, market string) error {
	if market == "" {
		return nil
	}
	to := time.Now().UTC()
	candles, err := j.client.Candles(ctx, market, j.resolution, to.Add(-j.lookback), to)
	if err != nil {
		j.logger.WarnContext(ctx, "pipeline: price history unavailable",
			slog.String("market", market),
			slog.String("error", err.Error()),
		)
	} else if live(ctx) == nil {
		j.candles.Publish(candles)
	}

	trades, err := j.client.RecentTrades(ctx, market)
	if err != nil {
		j.logger.WarnContext(ctx, "pipeline: trade history unavailable",
			slog.String("market", market),
			slog.String("error", err.Error()),
		)
	} else if live(ctx) == nil {
		j.trades.Publish(trades)
	}
	return nil
}
