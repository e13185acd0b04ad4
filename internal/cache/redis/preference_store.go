package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// PreferenceStore implements domain.PreferenceStore with one hash per wallet
// at "{prefix}prefs:{wallet}". Hash fields are the fixed preference keys.
type PreferenceStore struct {
	c *Client
}

// NewPreferenceStore creates a PreferenceStore backed by the given Client.
func NewPreferenceStore(c *Client) *PreferenceStore {
	return &PreferenceStore{c: c}
}

// Load returns every stored preference of wallet. Missing wallets yield an
// empty map.
func (ps *PreferenceStore) Load(ctx context.Context, wallet string) (map[string]string, error) {
	vals, err := ps.c.rdb.HGetAll(ctx, ps.c.Key("prefs", wallet)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load preferences %s: %w", wallet, err)
	}
	return vals, nil
}

// Save writes values over wallet's stored preferences.
func (ps *PreferenceStore) Save(ctx context.Context, wallet string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := ps.c.rdb.HSet(ctx, ps.c.Key("prefs", wallet), fields).Err(); err != nil {
		return fmt.Errorf("redis: save preferences %s: %w", wallet, err)
	}
	return nil
}

var _ domain.PreferenceStore = (*PreferenceStore)(nil)
