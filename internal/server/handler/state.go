package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// StateHandler serves read-only views of the polled state.
type StateHandler struct {
	store  *state.Store
	books  domain.OrderbookCache
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler. books may be nil.
func NewStateHandler(store *state.Store, books domain.OrderbookCache, logger *slog.Logger) *StateHandler {
	return &StateHandler{store: store, books: books, logger: logger}
}

type poolsResponse struct {
	Pools   []domain.Pool `json:"pools"`
	Version uint64        `json:"version"`
}

// ListPools returns every lending pool ordered by symbol.
// GET /api/pools
func (h *StateHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, _ := h.store.Pools.Load()
	out := make([]domain.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, poolsResponse{Pools: out, Version: h.store.Pools.Version()})
}

type accountsResponse struct {
	Accounts []domain.MarginAccount          `json:"accounts"`
	Wallet   map[string]domain.WalletBalance `json:"wallet"`
	Version  uint64                          `json:"version"`
}

// ListAccounts returns the connected wallet's margin accounts and balances.
// GET /api/accounts
func (h *StateHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, _ := h.store.Accounts.Load()
	if accounts == nil {
		accounts = []domain.MarginAccount{}
	}
	balances, _ := h.store.WalletBalances.Load()
	if balances == nil {
		balances = map[string]domain.WalletBalance{}
	}
	writeJSON(w, http.StatusOK, accountsResponse{
		Accounts: accounts,
		Wallet:   balances,
		Version:  h.store.Accounts.Version(),
	})
}

type orderbookResponse struct {
	domain.OrderbookSnapshot
	Mid    float64 `json:"mid"`
	Source string  `json:"source"`
}

// Orderbook returns the latest snapshot for a market. The live slice is
// used when it holds the requested market; otherwise the cached snapshot.
// GET /api/markets/{market}/orderbook
func (h *StateHandler) Orderbook(w http.ResponseWriter, r *http.Request) {
	market := pathParam(r, "market")
	if market == "" {
		writeError(w, http.StatusBadRequest, "missing market")
		return
	}

	if snap, ok := h.store.Orderbook.Load(); ok && snap.Market == market {
		writeJSON(w, http.StatusOK, orderbookResponse{OrderbookSnapshot: snap, Mid: snap.MidPrice(), Source: "live"})
		return
	}
	if h.books == nil {
		writeError(w, http.StatusNotFound, "orderbook not found")
		return
	}
	snap, err := h.books.GetSnapshot(r.Context(), market)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "orderbook not found")
			return
		}
		writeErr(w, r, h.logger, err, "failed to load orderbook")
		return
	}
	writeJSON(w, http.StatusOK, orderbookResponse{OrderbookSnapshot: snap, Mid: snap.MidPrice(), Source: "cache"})
}
