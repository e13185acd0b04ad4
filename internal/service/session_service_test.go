package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

type recordKeyed struct {
	wallets []string
	markets []string
}

func (r *recordKeyed) SetWallet(w string) { r.wallets = append(r.wallets, w) }
func (r *recordKeyed) SetMarket(m string) { r.markets = append(r.markets, m) }

func TestSessionSelections(t *testing.T) {
	f := newFixture(t)
	keyed := &recordKeyed{}
	svc := NewSessionService(f.store, f.store.Session.MustClaim("test"), keyed, f.prefs, discard())
	assert.Equal(t, domain.ActionDeposit, svc.Current().Action)

	sess := svc.SelectWallet(context.Background(), testWallet)
	assert.Equal(t, testWallet, sess.Wallet)
	assert.Equal(t, []string{testWallet}, keyed.wallets)

	sess = svc.SelectMarket("SOL/USDC")
	assert.Equal(t, "SOL/USDC", sess.Market)
	assert.Equal(t, []string{"SOL/USDC"}, keyed.markets)

	_, err := svc.SelectAccount("missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = svc.SelectPool("DOGE")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
	_, err = svc.SelectAction("stake")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestSessionInputIsClamped(t *testing.T) {
	f := newFixture(t)
	svc := NewSessionService(f.store, f.store.Session.MustClaim("test"), nil, nil, discard())

	_, err := svc.SelectAccount(f.account)
	require.NoError(t, err)
	_, err = svc.SelectPool("USDC")
	require.NoError(t, err)

	sess, err := svc.SetInput("2500")
	require.NoError(t, err)
	assert.Equal(t, "1000", sess.TokenInput.Text)
	assert.Equal(t, "1000", sess.TokenInput.Value.String())

	sess, err = svc.SetInput("12.5")
	require.NoError(t, err)
	assert.Equal(t, "12.5", sess.TokenInput.Text)

	_, err = svc.SetInput("abc")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	sess, err = svc.SelectAction(domain.ActionWithdraw)
	require.NoError(t, err)
	assert.True(t, sess.TokenInput.Value.IsZero())
}
