package handler

import (
	"log/slog"
	"net/http"

	"github.com/crownedlabs/tradetrack/internal/service"
)

// ReconcileHandler exposes on-demand broker reconciliation.
type ReconcileHandler struct {
	reconciler *service.Reconciler
	logger     *slog.Logger
}

// NewReconcileHandler creates a ReconcileHandler.
func NewReconcileHandler(reconciler *service.Reconciler, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("handler", "reconcile")),
	}
}

// Run handles POST /api/reconcile. It compares tracked positions against
// broker holdings and returns the drift report.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.logger.Error("reconcile failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
