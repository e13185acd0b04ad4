package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/service"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// RiskEvaluator defines the methods the risk handler requires from the
// service layer.
type RiskEvaluator interface {
	AccountRisk(address string) (service.AccountRisk, error)
	Preflight(req domain.ActionRequest) (service.Preflight, error)
}

// RiskHandler serves risk indicators and projections.
type RiskHandler struct {
	risk   RiskEvaluator
	store  *state.Store
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskEvaluator, store *state.Store, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, store: store, logger: logger}
}

// AccountRisk returns the current indicator and level of one account.
// GET /api/accounts/{address}/risk
func (h *RiskHandler) AccountRisk(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	out, err := h.risk.AccountRisk(address)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to compute account risk")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Project returns the projected risk of a hypothetical action together with
// the reason it would be refused, if any.
// POST /api/risk/project
func (h *RiskHandler) Project(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toRequest(h.store)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to project risk")
		return
	}
	out, err := h.risk.Preflight(req)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to project risk")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
