package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
	}{
		{"phantom rejection", errors.New("User rejected the request."), true},
		{"denied", errors.New("Transaction signing: user denied"), true},
		{"context cancelled", context.Canceled, true},
		{"rpc failure", errors.New("Transaction simulation failed: insufficient funds"), false},
		{"already typed", domain.ErrUserCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.cancelled, errors.Is(got, domain.ErrUserCancelled))
			var failed *domain.TransactionFailedError
			assert.Equal(t, !tt.cancelled, errors.As(got, &failed))
		})
	}
	assert.NoError(t, ClassifyError(nil))
}

func TestClassifyErrorKeepsTransactionFailed(t *testing.T) {
	orig := &domain.TransactionFailedError{Reason: "blockhash expired"}
	assert.Same(t, orig, ClassifyError(orig))
}

func TestKeypairWalletSign(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := NewKeypairWallet(key, nil)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), w.PublicKey())

	msg := []byte("hello")
	sig, err := w.Sign(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, solana.SignatureFromBytes(sig).Verify(key.PublicKey(), msg))
}

func TestKeypairWalletDecline(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := NewKeypairWallet(key, func(context.Context, []byte) (bool, error) { return false, nil })
	require.NoError(t, err)

	_, err = w.Sign(context.Background(), []byte("hello"))
	assert.ErrorIs(t, err, domain.ErrUserCancelled)

	_, err = NewKeypairWallet(solana.PrivateKey{1}, nil)
	assert.ErrorIs(t, err, domain.ErrWalletNotReady)
}
