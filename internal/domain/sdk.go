package domain

import (
	"context"
	"time"
)

// MarginSDK is the boundary to the margin/pool/market protocol client. Loaders
// return fresh value snapshots; action methods return the transaction id.
// Action errors are either ErrUserCancelled or *TransactionFailedError.
type MarginSDK interface {
	LoadPools(ctx context.Context) ([]Pool, error)
	LoadAccounts(ctx context.Context, owner string) ([]MarginAccount, error)
	LoadMarkets(ctx context.Context) ([]Market, error)
	LoadOrderbook(ctx context.Context, market string) (OrderbookSnapshot, error)
	LoadOpenOrders(ctx context.Context, account, market string) ([]OpenOrder, error)
	LoadSwapPools(ctx context.Context) ([]SwapPool, error)

	Deposit(ctx context.Context, account, symbol string, amount TokenAmount) (string, error)
	Withdraw(ctx context.Context, account, symbol string, amount TokenAmount) (string, error)
	Borrow(ctx context.Context, account, symbol string, amount TokenAmount) (string, error)
	Repay(ctx context.Context, account, symbol string, amount TokenAmount, fromWallet bool) (string, error)
	Swap(ctx context.Context, account, pool, from, to string, amount, minOutput TokenAmount) (string, error)
	Transfer(ctx context.Context, from, to, symbol string, amount TokenAmount) (string, error)
	PlaceOrder(ctx context.Context, account, market string, order OrderIntent) (string, error)
	CancelOrder(ctx context.Context, account, market, orderID string) (string, error)
	CreateAccount(ctx context.Context, owner string) (string, error)
}

// Wallet is the signing boundary. Sign returns ErrUserCancelled when the
// holder declines.
type Wallet interface {
	PublicKey() string
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// BalanceReader reads token balances held directly by a wallet.
type BalanceReader interface {
	WalletBalances(ctx context.Context, owner string, mints map[string]string) ([]WalletBalance, error)
}

// HistoryClient reads the best-effort price and trade history endpoints.
type HistoryClient interface {
	Candles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]Candle, error)
	RecentTrades(ctx context.Context, market string) ([]RecentTrade, error)
}
