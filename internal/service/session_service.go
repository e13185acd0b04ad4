package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// KeyedRefresher re-keys wallet- and market-scoped polling.
type KeyedRefresher interface {
	SetWallet(wallet string)
	SetMarket(market string)
}

// SessionService is the single writer of the session slice: the selected
// wallet, account, pool, market and the in-progress input.
type SessionService struct {
	store  *state.Store
	out    *state.Writer[state.Session]
	keyed  KeyedRefresher
	prefs  *PreferenceService
	logger *slog.Logger

	mu sync.Mutex
}

// NewSessionService creates a SessionService. keyed and prefs may be nil.
func NewSessionService(store *state.Store, out *state.Writer[state.Session], keyed KeyedRefresher, prefs *PreferenceService, logger *slog.Logger) *SessionService {
	out.Publish(state.Session{Action: domain.ActionDeposit})
	return &SessionService{store: store, out: out, keyed: keyed, prefs: prefs, logger: logger}
}

// Current returns the session.
func (s *SessionService) Current() state.Session {
	sess, _ := s.out.Current()
	return sess
}

func (s *SessionService) update(fn func(*state.Session)) state.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, _ := s.out.Current()
	fn(&sess)
	s.out.Publish(sess)
	return sess
}

// SelectWallet switches the connected wallet. Wallet-scoped polling restarts
// and the wallet's preferences are loaded.
func (s *SessionService) SelectWallet(ctx context.Context, wallet string) state.Session {
	sess := s.update(func(sess *state.Session) {
		if sess.Wallet != wallet {
			sess.Account = ""
		}
		sess.Wallet = wallet
	})
	if s.keyed != nil {
		s.keyed.SetWallet(wallet)
	}
	if s.prefs != nil && wallet != "" {
		if _, err := s.prefs.Load(ctx, wallet); err != nil {
			s.logger.WarnContext(ctx, "session_service: load preferences failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	}
	return sess
}

// SelectAccount selects a margin account of the current wallet.
func (s *SessionService) SelectAccount(address string) (state.Session, error) {
	if address != "" {
		if _, ok := s.store.Account(address); !ok {
			return state.Session{}, fmt.Errorf("session_service: %s: %w", address, domain.ErrAccountNotFound)
		}
	}
	return s.update(func(sess *state.Session) {
		sess.Account = address
		sess.TokenInput = s.input(*sess, "")
	}), nil
}

// SelectPool selects the lending pool the action panel works on.
func (s *SessionService) SelectPool(symbol string) (state.Session, error) {
	if _, ok := s.store.Pool(symbol); !ok {
		return state.Session{}, fmt.Errorf("session_service: %s: %w", symbol, domain.ErrPoolNotFound)
	}
	return s.update(func(sess *state.Session) {
		sess.Pool = symbol
		sess.TokenInput = s.input(*sess, "")
	}), nil
}

// SelectMarket switches the order-book market. Market-scoped polling
// restarts.
func (s *SessionService) SelectMarket(market string) state.Session {
	sess := s.update(func(sess *state.Session) {
		sess.Market = market
		sess.Order = domain.OrderIntent{Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit}
	})
	if s.keyed != nil {
		s.keyed.SetMarket(market)
	}
	return sess
}

// SelectSwapPool selects the exchange pool for swaps.
func (s *SessionService) SelectSwapPool(address string) state.Session {
	return s.update(func(sess *state.Session) { sess.SwapPool = address })
}

// SelectAction switches the action tab, re-bounding the input to the new
// maximum.
func (s *SessionService) SelectAction(kind domain.ActionKind) (state.Session, error) {
	if !kind.Valid() {
		return state.Session{}, fmt.Errorf("session_service: %w: %q", domain.ErrInvalidAction, kind)
	}
	return s.update(func(sess *state.Session) {
		sess.Action = kind
		sess.TokenInput = s.input(*sess, sess.TokenInput.Text)
	}), nil
}

// SetInput parses user-entered text into the token input, clamped to the
// current maximum for the selected action.
func (s *SessionService) SetInput(text string) (state.Session, error) {
	var parseErr error
	sess := s.update(func(sess *state.Session) {
		in := s.input(*sess, "")
		in, parseErr = in.SetText(text)
		if parseErr == nil {
			sess.TokenInput = in
		}
	})
	if parseErr != nil {
		return state.Session{}, fmt.Errorf("session_service: %w", parseErr)
	}
	return sess, nil
}

// input returns an AmountInput bounded by the selected position's maximum.
func (s *SessionService) input(sess state.Session, text string) domain.AmountInput {
	pool, ok := s.store.Pool(sess.Pool)
	if !ok {
		return domain.NewAmountInput(domain.ZeroAmount(0))
	}
	max := domain.ZeroAmount(pool.Decimals)
	if acct, ok := s.store.Account(sess.Account); ok {
		pos, _ := acct.Position(pool.Symbol)
		max = pos.Max(sess.Action, pool.Decimals)
	}
	in := domain.NewAmountInput(max)
	if text != "" {
		if parsed, err := in.SetText(text); err == nil {
			in = parsed
		}
	}
	return in
}

// SetOrder stores the in-progress order intent.
func (s *SessionService) SetOrder(order domain.OrderIntent) state.Session {
	return s.update(func(sess *state.Session) { sess.Order = order })
}
