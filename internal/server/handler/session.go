package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// SessionController changes the user's selection.
type SessionController interface {
	Current() state.Session
	SelectWallet(ctx context.Context, wallet string) state.Session
	SelectAccount(address string) (state.Session, error)
	SelectPool(symbol string) (state.Session, error)
	SelectMarket(market string) state.Session
	SelectSwapPool(address string) state.Session
	SelectAction(kind domain.ActionKind) (state.Session, error)
	SetInput(text string) (state.Session, error)
	SetOrder(order domain.OrderIntent) state.Session
}

// SessionHandler serves the selected wallet, account, pool and market.
type SessionHandler struct {
	session SessionController
	store   *state.Store
	// fixedWallet is the signing keypair's address; when set the wallet
	// cannot be switched.
	fixedWallet string
	logger      *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(session SessionController, store *state.Store, fixedWallet string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: session, store: store, fixedWallet: fixedWallet, logger: logger}
}

// Get returns the session.
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Current())
}

type sessionBody struct {
	Wallet   *string    `json:"wallet"`
	Account  *string    `json:"account"`
	Pool     *string    `json:"pool"`
	Market   *string    `json:"market"`
	SwapPool *string    `json:"swap_pool"`
	Action   *string    `json:"action"`
	Input    *string    `json:"input"`
	Order    *orderBody `json:"order"`
}

// Update applies the fields present in the body in dependency order: the
// wallet first, the input last so it is clamped against the new selection.
// POST /api/session
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Wallet != nil {
		if h.fixedWallet != "" && *body.Wallet != h.fixedWallet {
			writeError(w, http.StatusBadRequest, "wallet is fixed to the signing keypair")
			return
		}
		h.session.SelectWallet(r.Context(), *body.Wallet)
	}
	if err := h.apply(body); err != nil {
		writeErr(w, r, h.logger, err, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Current())
}

func (h *SessionHandler) apply(body sessionBody) error {
	if body.Account != nil {
		if _, err := h.session.SelectAccount(*body.Account); err != nil {
			return err
		}
	}
	if body.Pool != nil {
		if _, err := h.session.SelectPool(*body.Pool); err != nil {
			return err
		}
	}
	if body.Market != nil {
		h.session.SelectMarket(*body.Market)
	}
	if body.SwapPool != nil {
		h.session.SelectSwapPool(*body.SwapPool)
	}
	if body.Action != nil {
		if _, err := h.session.SelectAction(domain.ActionKind(*body.Action)); err != nil {
			return err
		}
	}
	if body.Input != nil {
		if _, err := h.session.SetInput(*body.Input); err != nil {
			return err
		}
	}
	if body.Order != nil {
		market, ok := findMarket(h.store, h.session.Current().Market)
		if !ok {
			return domain.ErrMarketNotFound
		}
		order, err := body.Order.toIntent(market)
		if err != nil {
			return err
		}
		h.session.SetOrder(order)
	}
	return nil
}
