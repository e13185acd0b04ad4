package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// ActionDispatcher defines the methods the action handler requires from the
// service layer.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, wallet string, req domain.ActionRequest) (domain.ActionRecord, error)
	History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error)
	Get(ctx context.Context, id string) (domain.ActionRecord, error)
}

// SessionReader exposes the current selection.
type SessionReader interface {
	Current() state.Session
}

// ActionHandler submits actions for the connected wallet and serves their
// history.
type ActionHandler struct {
	actions ActionDispatcher
	session SessionReader
	store   *state.Store
	logger  *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(actions ActionDispatcher, session SessionReader, store *state.Store, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{actions: actions, session: session, store: store, logger: logger}
}

// Dispatch submits an action and blocks until it settles. The response
// status is 200 for every settled outcome; the record says which.
// POST /api/actions
func (h *ActionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := h.session.Current()
	if body.Account == "" {
		body.Account = sess.Account
	}
	req, err := body.toRequest(h.store)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to submit action")
		return
	}

	rec, err := h.actions.Dispatch(r.Context(), sess.Wallet, req)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to submit action")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type actionsResponse struct {
	Actions []domain.ActionRecord `json:"actions"`
}

// List returns the action history of a wallet, defaulting to the connected one.
// GET /api/actions?wallet=...&limit=50&offset=0
func (h *ActionHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		wallet = h.session.Current().Wallet
	}
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}
	records, err := h.actions.History(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to list actions")
		return
	}
	if records == nil {
		records = []domain.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, actionsResponse{Actions: records})
}

// Get returns one action record.
// GET /api/actions/{id}
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.actions.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to load action")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
