package explorer

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxLinks(t *testing.T) {
	sig := solana.Signature{1, 2, 3}.String()

	mainnet, err := New(MainnetBeta, Solscan, "")
	require.NoError(t, err)
	url, err := mainnet.Tx(sig)
	require.NoError(t, err)
	assert.Equal(t, "https://solscan.io/tx/"+sig, url)

	devnet, err := New(Devnet, SolanaExplorer, "")
	require.NoError(t, err)
	url, err = devnet.Tx(sig)
	require.NoError(t, err)
	assert.Equal(t, "https://explorer.solana.com/tx/"+sig+"?cluster=devnet", url)

	local, err := New(Localnet, SolanaExplorer, "http://localhost:8899")
	require.NoError(t, err)
	url, err = local.Tx(sig)
	require.NoError(t, err)
	assert.Equal(t, "https://explorer.solana.com/tx/"+sig+"?cluster=custom&customUrl=http://localhost:8899", url)

	url, err = devnet.WithExplorer(SolanaBeach).Tx(sig)
	require.NoError(t, err)
	assert.Equal(t, "https://solanabeach.io/transaction/"+sig+"?cluster=devnet", url)
}

func TestAccountLink(t *testing.T) {
	l, err := New(MainnetBeta, SolanaFM, "")
	require.NoError(t, err)
	addr := solana.SystemProgramID.String()
	url, err := l.Account(addr)
	require.NoError(t, err)
	assert.Equal(t, "https://solana.fm/address/"+addr, url)
}

func TestInvalidInputs(t *testing.T) {
	_, err := New(MainnetBeta, "etherscan", "")
	assert.ErrorIs(t, err, ErrUnknownExplorer)

	l, err := New(MainnetBeta, Solscan, "")
	require.NoError(t, err)
	_, err = l.Tx("not-a-signature")
	assert.Error(t, err)
	_, err = l.Account("0OIl")
	assert.Error(t, err)

	assert.Equal(t, l, l.WithExplorer("unknown"))
	assert.Len(t, Names(), 4)
}
