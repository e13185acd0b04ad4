package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

func TestDispatchSuccess(t *testing.T) {
	f := newFixture(t)
	svc := f.service(stubLocks{}, stubLimiter{allow: true})

	rec, err := svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:    domain.ActionDeposit,
		Account: f.account,
		Symbol:  "USDC",
		Amount:  amt("10", 6),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	assert.NotEmpty(t, rec.TxID)
	assert.Contains(t, rec.ExplorerURL, rec.TxID)
	assert.Contains(t, rec.ExplorerURL, "?cluster=devnet")

	require.Len(t, f.notes.got, 1)
	assert.Equal(t, "Deposit successful", f.notes.got[0].Title)
	assert.Equal(t, rec.ExplorerURL, f.notes.got[0].ExplorerURL)
	assert.Equal(t, 1, f.refresh.n)

	stored, err := f.actions.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, stored.Outcome)
	assert.Equal(t, []string{"action_success"}, f.audit.events)
	assert.Equal(t, rec.ID, f.audit.entries[0].ActionID)
	assert.Equal(t, rec.Wallet, f.audit.entries[0].Wallet)
}

func TestDispatchUserRejectedIsCancelled(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, nil)

	f.sdk.FailNext(errors.New("WalletSignTransactionError: User rejected the request."))
	rec, err := svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:    domain.ActionDeposit,
		Account: f.account,
		Symbol:  "USDC",
		Amount:  amt("10", 6),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, rec.Outcome)
	assert.Empty(t, rec.ExplorerURL)
	assert.Zero(t, f.refresh.n)

	require.Len(t, f.notes.got, 1)
	assert.Equal(t, domain.OutcomeCancelled, f.notes.got[0].Outcome)
	assert.Equal(t, "Deposit cancelled", f.notes.got[0].Title)
	assert.Empty(t, f.notes.got[0].ExplorerURL)
}

func TestDispatchFailure(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, nil)

	f.sdk.FailNext(errors.New("Transaction simulation failed: Blockhash not found"))
	rec, err := svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:    domain.ActionDeposit,
		Account: f.account,
		Symbol:  "USDC",
		Amount:  amt("10", 6),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, rec.Outcome)
	assert.Contains(t, rec.Error, "Blockhash not found")
	require.Len(t, f.notes.got, 1)
	assert.Equal(t, "Deposit failed", f.notes.got[0].Title)
	assert.Zero(t, f.refresh.n)
}

func TestDispatchDisabled(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, nil)

	_, err := svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:    domain.ActionDeposit,
		Account: f.account,
		Symbol:  "USDC",
		Amount:  amt("5000", 6),
	})
	require.ErrorIs(t, err, domain.ErrActionDisabled)
	var disabled *domain.DisabledError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, domain.DisabledExceedsMax, disabled.Reason)
	assert.Empty(t, f.actions.recs)
	assert.Empty(t, f.notes.got)

	_, err = svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:    domain.ActionWithdraw,
		Account: "missing",
		Symbol:  "USDC",
		Amount:  amt("1", 6),
	})
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, domain.DisabledNoAccount, disabled.Reason)
}

func TestDispatchRefusals(t *testing.T) {
	f := newFixture(t)
	req := domain.ActionRequest{Kind: domain.ActionDeposit, Account: f.account, Symbol: "USDC", Amount: amt("1", 6)}

	_, err := f.service(stubLocks{err: domain.ErrLockHeld}, nil).Dispatch(context.Background(), testWallet, req)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = f.service(nil, stubLimiter{allow: false}).Dispatch(context.Background(), testWallet, req)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = f.service(nil, nil).Dispatch(context.Background(), "", req)
	assert.ErrorIs(t, err, domain.ErrWalletNotReady)

	_, err = f.service(nil, nil).Dispatch(context.Background(), testWallet, domain.ActionRequest{Kind: "stake"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	assert.Empty(t, f.actions.recs)
}

func TestDispatchSwapUsesQuotedMinimum(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, nil)

	rec, err := svc.Dispatch(context.Background(), testWallet, domain.ActionRequest{
		Kind:         domain.ActionSwap,
		Account:      f.account,
		Symbol:       "SOL",
		OutputSymbol: "USDC",
		Amount:       amt("2", 9),
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSuccess, rec.Outcome, rec.Error)

	f.sync(t)
	acct, ok := f.store.Account(f.account)
	require.True(t, ok)
	assert.Equal(t, "18", acct.Positions["SOL"].Deposit.String())
	assert.True(t, acct.Positions["USDC"].Deposit.Cmp(amt("290", 6)) > 0)
	assert.Equal(t, "Swapped 2 SOL for USDC.", f.notes.got[0].Description)
}

func TestDispatchCreateAccount(t *testing.T) {
	f := newFixture(t)
	rec, err := f.service(nil, nil).Dispatch(context.Background(), testWallet, domain.ActionRequest{Kind: domain.ActionCreateAccount})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)

	accts, err := f.sdk.LoadAccounts(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Len(t, accts, 2)
}

func TestNotificationTemplates(t *testing.T) {
	rec := domain.ActionRecord{ID: "1", Kind: domain.ActionRepayFromWallet, Symbol: "SOL", Amount: "1.5", Outcome: domain.OutcomeSuccess, ExplorerURL: "https://x"}
	n := Notification(rec, domain.ActionRequest{})
	assert.Equal(t, "Repay successful", n.Title)
	assert.Equal(t, "Repaid 1.5 SOL.", n.Description)
	assert.Equal(t, "https://x", n.ExplorerURL)

	rec.Outcome = domain.OutcomeFailed
	rec.Error = "insufficient funds"
	n = Notification(rec, domain.ActionRequest{})
	assert.Equal(t, "The transaction failed: insufficient funds.", n.Description)
	assert.Empty(t, n.ExplorerURL)
}
