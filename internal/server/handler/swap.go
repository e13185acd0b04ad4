package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/service"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// Quoter prices swaps against the polled exchange pools.
type Quoter interface {
	Quote(address, from, to string, input domain.TokenAmount, slippage *decimal.Decimal) (service.SwapQuote, error)
}

// SwapHandler serves swap quotes.
type SwapHandler struct {
	quotes Quoter
	store  *state.Store
	logger *slog.Logger
}

// NewSwapHandler creates a SwapHandler.
func NewSwapHandler(quotes Quoter, store *state.Store, logger *slog.Logger) *SwapHandler {
	return &SwapHandler{quotes: quotes, store: store, logger: logger}
}

type quoteBody struct {
	Pool     string `json:"pool"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Slippage string `json:"slippage"`
}

// Quote prices a swap. Amounts are whole-token strings in the input token.
// POST /api/swap/quote
func (h *SwapHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var body quoteBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	input, err := parseFor(h.store, body.From, body.Amount)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to quote swap")
		return
	}
	var slippage *decimal.Decimal
	if body.Slippage != "" {
		s, err := decimal.NewFromString(body.Slippage)
		if err != nil || s.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid slippage")
			return
		}
		slippage = &s
	}

	q, err := h.quotes.Quote(body.Pool, body.From, body.To, input, slippage)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to quote swap")
		return
	}
	writeJSON(w, http.StatusOK, q)
}
