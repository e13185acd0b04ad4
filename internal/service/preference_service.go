package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/explorer"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// PreferenceService owns the preferences slice. It loads and saves the
// wallet's preferences under their fixed keys and resolves explorer links
// with the preferred explorer.
type PreferenceService struct {
	store    domain.PreferenceStore
	out      *state.Writer[domain.Preferences]
	defaults domain.Preferences
	links    explorer.Links
	logger   *slog.Logger

	mu     sync.Mutex
	wallet string
}

var _ TxLinker = (*PreferenceService)(nil)

// NewPreferenceService creates a PreferenceService and publishes defaults.
func NewPreferenceService(store domain.PreferenceStore, out *state.Writer[domain.Preferences], defaults domain.Preferences, links explorer.Links, logger *slog.Logger) *PreferenceService {
	out.Publish(defaults)
	return &PreferenceService{store: store, out: out, defaults: defaults, links: links, logger: logger}
}

// Current returns the published preferences.
func (s *PreferenceService) Current() domain.Preferences {
	p, ok := s.out.Current()
	if !ok {
		return s.defaults
	}
	return p
}

// Load reads wallet's stored preferences over the defaults and publishes them.
// Stored keys that are unknown or fail to decode are skipped. When the store
// read fails, defaults are published and no wallet is bound, so the previous
// wallet's preferences are never written under the new one.
func (s *PreferenceService) Load(ctx context.Context, wallet string) (domain.Preferences, error) {
	raw, err := s.store.Load(ctx, wallet)
	if err != nil {
		s.bind("", s.defaults)
		return domain.Preferences{}, fmt.Errorf("preference_service: load: %w", err)
	}
	prefs := s.defaults
	for key, value := range raw {
		next, err := domain.DecodePreferences(prefs, map[string]string{key: value})
		if err != nil {
			s.logger.WarnContext(ctx, "preference_service: skipping stored preference",
				slog.String("wallet", wallet), slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		prefs = next
	}
	s.bind(wallet, prefs)
	return prefs, nil
}

// bind switches the wallet and publishes prefs under the same lock, so saves
// never pair one wallet with another's preferences.
func (s *PreferenceService) bind(wallet string, prefs domain.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = wallet
	s.out.Publish(prefs)
}

// Update applies raw key/value pairs to the current preferences, persists
// the result and publishes it. Unknown keys are rejected before anything is
// written.
func (s *PreferenceService) Update(ctx context.Context, raw map[string]string) (domain.Preferences, error) {
	prefs, err := domain.DecodePreferences(s.Current(), raw)
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("preference_service: %w", err)
	}
	if e := prefs.PreferredExplorer; e != "" && !explorer.Explorer(e).Valid() {
		return domain.Preferences{}, fmt.Errorf("preference_service: %w", explorer.ErrUnknownExplorer)
	}
	if err := s.save(ctx, prefs); err != nil {
		return domain.Preferences{}, err
	}
	return prefs, nil
}

// Replace persists prefs wholesale.
func (s *PreferenceService) Replace(ctx context.Context, prefs domain.Preferences) error {
	return s.save(ctx, prefs)
}

func (s *PreferenceService) save(ctx context.Context, prefs domain.Preferences) error {
	s.mu.Lock()
	wallet := s.wallet
	s.mu.Unlock()

	if wallet != "" {
		encoded, err := domain.EncodePreferences(prefs)
		if err != nil {
			return fmt.Errorf("preference_service: %w", err)
		}
		if err := s.store.Save(ctx, wallet, encoded); err != nil {
			return fmt.Errorf("preference_service: save: %w", err)
		}
	} else {
		s.logger.DebugContext(ctx, "preference_service: no wallet, keeping preferences in memory")
	}
	s.out.Publish(prefs)
	return nil
}

// Links returns explorer links using the preferred explorer.
func (s *PreferenceService) Links() explorer.Links {
	return s.links.WithExplorer(explorer.Explorer(s.Current().PreferredExplorer))
}

// TxURL builds the transaction link with the preferred explorer.
func (s *PreferenceService) TxURL(txID string) (string, error) {
	return s.Links().Tx(txID)
}
