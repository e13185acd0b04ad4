package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/alanyoungcy/marginterm/internal/format"
)

// Refresher triggers an immediate poll of every data source.
type Refresher interface {
	TriggerRefresh()
}

// SystemHandler serves refresh, formatting and configuration endpoints.
type SystemHandler struct {
	refresher Refresher
	config    any
	rates     map[string]decimal.Decimal
	fiat      func() string
	logger    *slog.Logger
}

// NewSystemHandler creates a SystemHandler. config is rendered verbatim by
// GET /api/config and must already be redacted. fiat returns the default
// currency for formatting.
func NewSystemHandler(refresher Refresher, config any, rates map[string]decimal.Decimal, fiat func() string, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{refresher: refresher, config: config, rates: rates, fiat: fiat, logger: logger}
}

// Refresh polls every source now.
// POST /api/refresh
func (h *SystemHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.refresher.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// Config returns the redacted configuration.
// GET /api/config
func (h *SystemHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}

type currencyResponse struct {
	Value     string `json:"value"`
	Fiat      string `json:"fiat"`
	Formatted string `json:"formatted"`
}

// Currency renders a USD value for display.
// GET /api/format/currency?value=12345.678&fiat=EUR&decimals=2&abbrev=true&ceil=false&locale=de
func (h *SystemHandler) Currency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	value, err := decimal.NewFromString(q.Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}
	fiat := q.Get("fiat")
	if fiat == "" && h.fiat != nil {
		fiat = h.fiat()
	}
	tag := language.English
	if l := q.Get("locale"); l != "" {
		if tag, err = language.Parse(l); err != nil {
			writeError(w, http.StatusBadRequest, "invalid locale")
			return
		}
	}
	decimals := int64(2)
	if v := q.Get("decimals"); v != "" {
		if decimals, err = strconv.ParseInt(v, 10, 32); err != nil || decimals < 0 || decimals > 18 {
			writeError(w, http.StatusBadRequest, "invalid decimals")
			return
		}
	}

	f, err := format.New(tag, fiat, h.rates)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := format.Options{
		Fiat:     q.Get("token") != "true",
		Decimals: int32(decimals),
		Ceil:     q.Get("ceil") == "true",
	}
	out := f.Currency(value, opts)
	if q.Get("abbrev") == "true" {
		out = f.Abbrev(value, opts)
	}
	writeJSON(w, http.StatusOK, currencyResponse{Value: value.String(), Fiat: f.Fiat(), Formatted: out})
}
