package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// HistoryHandler proxies the price and trade history endpoints. Both are
// best effort: upstream failures yield an empty list.
type HistoryHandler struct {
	client     domain.HistoryClient
	resolution string
	lookback   time.Duration
	logger     *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with default candle resolution
// and lookback.
func NewHistoryHandler(client domain.HistoryClient, resolution string, lookback time.Duration, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{client: client, resolution: resolution, lookback: lookback, logger: logger}
}

type candlesResponse struct {
	Symbol     string          `json:"symbol"`
	Resolution string          `json:"resolution"`
	Candles    []domain.Candle `json:"candles"`
}

// Candles returns OHLCV bars for a symbol.
// GET /api/history/candles?symbol=SOL&resolution=1h&from=...&to=...
func (h *HistoryHandler) Candles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}
	resolution := q.Get("resolution")
	if resolution == "" {
		resolution = h.resolution
	}
	to := time.Now().UTC()
	if v, ok := parseUnix(q.Get("to")); ok {
		to = v
	}
	from := to.Add(-h.lookback)
	if v, ok := parseUnix(q.Get("from")); ok {
		from = v
	}

	candles, err := h.client.Candles(r.Context(), symbol, resolution, from, to)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: candle history unavailable",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		candles = nil
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, candlesResponse{Symbol: symbol, Resolution: resolution, Candles: candles})
}

type tradesResponse struct {
	Market string               `json:"market"`
	Trades []domain.RecentTrade `json:"trades"`
}

// Trades returns recent fills for a market.
// GET /api/history/trades?market=SOL/USDC
func (h *HistoryHandler) Trades(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if market == "" {
		writeError(w, http.StatusBadRequest, "market query parameter required")
		return
	}
	trades, err := h.client.RecentTrades(r.Context(), market)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: trade history unavailable",
			slog.String("market", market),
			slog.String("error", err.Error()),
		)
		trades = nil
	}
	if trades == nil {
		trades = []domain.RecentTrade{}
	}
	writeJSON(w, http.StatusOK, tradesResponse{Market: market, Trades: trades})
}

// parseUnix accepts unix seconds or RFC 3339.
func parseUnix(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
