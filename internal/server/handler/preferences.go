package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// PreferenceManager reads and updates the user's preferences.
type PreferenceManager interface {
	Current() domain.Preferences
	Update(ctx context.Context, raw map[string]string) (domain.Preferences, error)
}

// PreferenceHandler serves the persisted preferences.
type PreferenceHandler struct {
	prefs  PreferenceManager
	logger *slog.Logger
}

// NewPreferenceHandler creates a PreferenceHandler.
func NewPreferenceHandler(prefs PreferenceManager, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, logger: logger}
}

// Get returns the current preferences.
// GET /api/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prefs.Current())
}

// Update applies a map of storage key to raw value, e.g.
// {"jetPreferredExplorer": "solscan", "jetLightTheme": "true"}.
// PUT /api/preferences
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prefs, err := h.prefs.Update(r.Context(), raw)
	if err != nil {
		writeErr(w, r, h.logger, err, "failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
