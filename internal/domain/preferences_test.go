package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesEncodePlainAndJSON(t *testing.T) {
	p := Preferences{
		PreferredNode:       "https://rpc.example.org",
		PreferredFiat:       "EUR",
		PreferredExplorer:   "solscan",
		DisclaimersAccepted: map[string]bool{"wallet1": true},
		FavoriteAccounts:    map[string][]string{"wallet1": {"acct1", "acct2"}},
		PoolsOrder:          []string{"SOL", "USDC"},
		LightTheme:          true,
	}

	raw, err := EncodePreferences(p)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.org", raw[PrefPreferredNode])
	assert.Equal(t, "true", raw[PrefLightTheme])
	assert.Equal(t, `{"wallet1":true}`, raw[PrefDisclaimersAccepted])
	assert.Equal(t, `["SOL","USDC"]`, raw[PrefPoolsOrder])
	assert.Equal(t, "null", raw[PrefMarketsOrder])

	back, err := DecodePreferences(Preferences{}, raw)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestDecodePreferencesKeepsBase(t *testing.T) {
	base := Preferences{PreferredFiat: "USD", PreferredExplorer: "solanaExplorer"}
	got, err := DecodePreferences(base, map[string]string{PrefPreferredFiat: "JPY"})
	require.NoError(t, err)
	assert.Equal(t, "JPY", got.PreferredFiat)
	assert.Equal(t, "solanaExplorer", got.PreferredExplorer)
}

func TestDecodePreferencesErrors(t *testing.T) {
	_, err := DecodePreferences(Preferences{}, map[string]string{"unknown": "x"})
	assert.ErrorIs(t, err, ErrUnknownPreference)

	_, err = DecodePreferences(Preferences{}, map[string]string{PrefLightTheme: "maybe"})
	assert.Error(t, err)

	_, err = DecodePreferences(Preferences{}, map[string]string{PrefPoolsOrder: "{"})
	assert.Error(t, err)
}
