package handler

import (
	"log/slog"
	"net/http"

	"github.com/crownedlabs/tradetrack/internal/service"
)

// TrackHandler exposes on-demand tracker ticks.
type TrackHandler struct {
	tracker *service.Tracker
	logger  *slog.Logger
}

// NewTrackHandler creates a TrackHandler.
func NewTrackHandler(tracker *service.Tracker, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{
		tracker: tracker,
		logger:  logger.With(slog.String("handler", "track")),
	}
}

// Run handles POST /api/track/run. It executes a single tick and returns
// the tally; a concurrently held tick lock yields Skipped=true.
func (h *TrackHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.tracker.Tick(r.Context())
	if err != nil {
		h.logger.Error("manual tick failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
