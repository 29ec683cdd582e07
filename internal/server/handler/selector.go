package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/service"
)

// SelectorHandler serves contract selection requests.
type SelectorHandler struct {
	contracts *service.ContractService
	logger    *slog.Logger
}

// NewSelectorHandler creates a SelectorHandler.
func NewSelectorHandler(contracts *service.ContractService, logger *slog.Logger) *SelectorHandler {
	return &SelectorHandler{
		contracts: contracts,
		logger:    logger.With(slog.String("handler", "selector")),
	}
}

type selectRequest struct {
	Underlying string `json:"underlying"`
	Side       string `json:"side"`
	Horizon    string `json:"horizon"`
}

// Select handles POST /api/contracts/select.
func (h *SelectorHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sel, err := h.contracts.Pick(r.Context(), service.SelectionRequest{
		Underlying: req.Underlying,
		Side:       domain.OptionSide(req.Side),
		Horizon:    domain.Horizon(req.Horizon),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoContract) {
			writeError(w, http.StatusUnprocessableEntity, "selection ladder exhausted")
			return
		}
		h.logger.Error("contract selection failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sel)
}
