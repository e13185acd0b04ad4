package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Fixed storage keys for persisted preferences.
const (
	PrefPreferredNode       = "jetPreferredNode"
	PrefPreferredFiat       = "jetPreferredFiat"
	PrefPreferredExplorer   = "jetPreferredExplorer"
	PrefDisclaimersAccepted = "jetDisclaimersAccepted"
	PrefFavoriteAccounts    = "jetFavoriteAccounts"
	PrefAccountsOrder       = "jetAccountsOrder"
	PrefPoolsOrder          = "jetPoolsOrder"
	PrefMarketsOrder        = "jetMarketsOrder"
	PrefLightTheme          = "jetLightTheme"
)

// PreferenceKeys lists every persisted key.
var PreferenceKeys = []string{
	PrefPreferredNode, PrefPreferredFiat, PrefPreferredExplorer, PrefDisclaimersAccepted,
	PrefFavoriteAccounts, PrefAccountsOrder, PrefPoolsOrder, PrefMarketsOrder, PrefLightTheme,
}

// Preferences are the user's persisted settings.
type Preferences struct {
	PreferredNode       string              `json:"preferred_node"`
	PreferredFiat       string              `json:"preferred_fiat"`
	PreferredExplorer   string              `json:"preferred_explorer"`
	DisclaimersAccepted map[string]bool     `json:"disclaimers_accepted"`
	FavoriteAccounts    map[string][]string `json:"favorite_accounts"`
	AccountsOrder       []string            `json:"accounts_order"`
	PoolsOrder          []string            `json:"pools_order"`
	MarketsOrder        []string            `json:"markets_order"`
	LightTheme          bool                `json:"light_theme"`
}

// EncodePreferences serializes each preference under its fixed key. Strings
// and booleans are stored as plain text; everything else as JSON.
func EncodePreferences(p Preferences) (map[string]string, error) {
	out := map[string]string{
		PrefPreferredNode:     p.PreferredNode,
		PrefPreferredFiat:     p.PreferredFiat,
		PrefPreferredExplorer: p.PreferredExplorer,
		PrefLightTheme:        strconv.FormatBool(p.LightTheme),
	}
	jsonValues := map[string]any{
		PrefDisclaimersAccepted: p.DisclaimersAccepted,
		PrefFavoriteAccounts:    p.FavoriteAccounts,
		PrefAccountsOrder:       p.AccountsOrder,
		PrefPoolsOrder:          p.PoolsOrder,
		PrefMarketsOrder:        p.MarketsOrder,
	}
	for k, v := range jsonValues {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode preference %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// DecodePreferences applies stored values over base. Missing keys keep the
// base value.
func DecodePreferences(base Preferences, raw map[string]string) (Preferences, error) {
	p := base
	for k, v := range raw {
		if err := p.apply(k, v); err != nil {
			return base, err
		}
	}
	return p, nil
}

// apply sets the field stored under key.
func (p *Preferences) apply(key, value string) error {
	var target any
	switch key {
	case PrefPreferredNode:
		p.PreferredNode = value
		return nil
	case PrefPreferredFiat:
		p.PreferredFiat = value
		return nil
	case PrefPreferredExplorer:
		p.PreferredExplorer = value
		return nil
	case PrefLightTheme:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("decode preference %s: %w", key, err)
		}
		p.LightTheme = b
		return nil
	case PrefDisclaimersAccepted:
		target = &p.DisclaimersAccepted
	case PrefFavoriteAccounts:
		target = &p.FavoriteAccounts
	case PrefAccountsOrder:
		target = &p.AccountsOrder
	case PrefPoolsOrder:
		target = &p.PoolsOrder
	case PrefMarketsOrder:
		target = &p.MarketsOrder
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPreference, key)
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("decode preference %s: %w", key, err)
	}
	return nil
}
