package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/platform/wallet"
	"github.com/alanyoungcy/marginterm/internal/risk"
)

const owner = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"

func newAccount(t *testing.T, sdk *SDK) domain.MarginAccount {
	t.Helper()
	ctx := context.Background()
	_, err := sdk.CreateAccount(ctx, owner)
	require.NoError(t, err)
	accounts, err := sdk.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	require.NotEmpty(t, accounts)
	return accounts[len(accounts)-1]
}

func amt(v string, decimals int32) domain.TokenAmount {
	return domain.TokenAmountFromTokens(decimal.RequireFromString(v), decimals)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	sdk := New(nil, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	tx, err := sdk.Deposit(ctx, acct.Address, "USDC", amt("1000", 6))
	require.NoError(t, err)
	_, err = solana.SignatureFromBase58(tx)
	require.NoError(t, err)

	_, err = sdk.Borrow(ctx, acct.Address, "SOL", amt("2", 9))
	require.NoError(t, err)

	accounts, err := sdk.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	got := accounts[0]
	assert.Equal(t, "1000", got.Positions["USDC"].Deposit.String())
	assert.Equal(t, "2", got.Positions["SOL"].Loan.String())
	assert.Equal(t, "2", got.Positions["SOL"].Deposit.String())
	assert.Greater(t, got.RiskIndicator, 0.0)
	assert.Less(t, got.RiskIndicator, 1.0)

	_, err = sdk.Repay(ctx, acct.Address, "SOL", amt("5", 9), false)
	require.NoError(t, err)
	accounts, err = sdk.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	assert.True(t, accounts[0].Positions["SOL"].Loan.IsZero())
}

func TestBorrowAboveRiskFails(t *testing.T) {
	ctx := context.Background()
	sdk := New(nil, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	_, err := sdk.Deposit(ctx, acct.Address, "USDC", amt("100", 6))
	require.NoError(t, err)

	// Borrowed tokens are deposited too, but at a discount, so a loan this
	// size outweighs the collateral.
	_, err = sdk.Borrow(ctx, acct.Address, "BTC", amt("1", 8))
	var failed *domain.TransactionFailedError
	require.ErrorAs(t, err, &failed)
}

func TestSwapAutoBorrowsShortfall(t *testing.T) {
	ctx := context.Background()
	sdk := New(nil, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	_, err := sdk.Deposit(ctx, acct.Address, "SOL", amt("10", 9))
	require.NoError(t, err)

	pool := DefaultSeed().SwapPools[0]
	_, err = sdk.Swap(ctx, acct.Address, pool.Address, "SOL", "USDC", amt("12", 9), amt("1000", 6))
	require.NoError(t, err)

	accounts, err := sdk.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	sol := accounts[0].Positions["SOL"]
	assert.True(t, sol.Deposit.IsZero())
	assert.Equal(t, "2", sol.Loan.String())
	assert.Equal(t, 1, accounts[0].Positions["USDC"].Deposit.Cmp(amt("1700", 6)))

	_, err = sdk.Swap(ctx, acct.Address, pool.Address, "USDC", "SOL", amt("10", 6), amt("1000", 9))
	var failed *domain.TransactionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Reason, "slippage")
}

func TestSignerRejection(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	approve := true
	w, err := wallet.NewKeypairWallet(key, func(context.Context, []byte) (bool, error) { return approve, nil })
	require.NoError(t, err)

	sdk := New(w, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	approve = false
	_, err = sdk.Deposit(context.Background(), acct.Address, "USDC", amt("1", 6))
	assert.ErrorIs(t, err, domain.ErrUserCancelled)

	accounts, err := sdk.LoadAccounts(context.Background(), owner)
	require.NoError(t, err)
	_, ok := accounts[0].Positions["USDC"]
	assert.False(t, ok)
}

func TestFailNextIsClassified(t *testing.T) {
	sdk := New(nil, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	sdk.FailNext(errors.New("User rejected the request."))
	_, err := sdk.Deposit(context.Background(), acct.Address, "USDC", amt("1", 6))
	assert.ErrorIs(t, err, domain.ErrUserCancelled)

	sdk.FailNext(errors.New("blockhash not found"))
	_, err = sdk.Deposit(context.Background(), acct.Address, "USDC", amt("1", 6))
	var failed *domain.TransactionFailedError
	assert.ErrorAs(t, err, &failed)

	_, err = sdk.Deposit(context.Background(), acct.Address, "USDC", amt("1", 6))
	assert.NoError(t, err)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	sdk := New(nil, risk.DefaultThresholds, DefaultSeed())
	acct := newAccount(t, sdk)

	intent := domain.OrderIntent{
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeLimit,
		Price:  domain.NewAmountInput(amt("1000000", 6)).SetValue(amt("149.5", 6)),
		Amount: domain.NewAmountInput(amt("1000", 9)).SetValue(amt("2", 9)),
	}
	_, err := sdk.PlaceOrder(ctx, acct.Address, "SOL/USDC", intent)
	require.NoError(t, err)

	orders, err := sdk.LoadOpenOrders(ctx, acct.Address, "SOL/USDC")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 149.5, orders[0].Price)

	_, err = sdk.CancelOrder(ctx, acct.Address, "SOL/USDC", orders[0].ID)
	require.NoError(t, err)
	orders, err = sdk.LoadOpenOrders(ctx, acct.Address, "SOL/USDC")
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = sdk.CancelOrder(ctx, acct.Address, "SOL/USDC", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
