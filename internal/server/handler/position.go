package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/service"
)

// PositionHandler serves position CRUD and history.
type PositionHandler struct {
	positions *service.PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions *service.PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger.With(slog.String("handler", "positions")),
	}
}

// openPositionRequest is the JSON body for POST /api/positions.
type openPositionRequest struct {
	UserID     string  `json:"user_id"`
	IdeaID     string  `json:"idea_id,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	Instrument string  `json:"instrument"`
	Symbol     string  `json:"symbol"`
	Contract   string  `json:"contract,omitempty"`
	OptionSide string  `json:"option_side,omitempty"`
	Strike     float64 `json:"strike,omitempty"`
	Expiration string  `json:"expiration,omitempty"`
	Quantity   int     `json:"quantity"`
	Multiplier int     `json:"multiplier,omitempty"`
	EntryPrice float64 `json:"entry_price"`

	Plan struct {
		Levels   []domain.TakeProfitLevel `json:"levels"`
		StopLoss *domain.StopLossRule     `json:"stop_loss,omitempty"`
		Trailing *domain.TrailingStop     `json:"trailing,omitempty"`
	} `json:"plan"`
}

// Open handles POST /api/positions.
func (h *PositionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.positions.Open(r.Context(), service.OpenRequest{
		UserID:     req.UserID,
		IdeaID:     req.IdeaID,
		Mode:       domain.TrackingMode(req.Mode),
		Instrument: domain.Instrument(req.Instrument),
		Symbol:     req.Symbol,
		Contract:   req.Contract,
		OptionSide: domain.OptionSide(req.OptionSide),
		Strike:     req.Strike,
		Expiration: req.Expiration,
		Quantity:   req.Quantity,
		Multiplier: req.Multiplier,
		EntryPrice: req.EntryPrice,
		Plan: domain.TradePlan{
			Levels:   req.Plan.Levels,
			StopLoss: req.Plan.StopLoss,
			Trailing: req.Plan.Trailing,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoContract) {
			writeError(w, http.StatusUnprocessableEntity, "no listed contract matched")
			return
		}
		h.logger.Error("open position failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/positions. With ?user_id= it returns that user's
// history; otherwise it returns all open positions.
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		positions, err := h.positions.History(r.Context(), userID, parseListOpts(r))
		if err != nil {
			h.logger.Error("list history failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		writeJSON(w, http.StatusOK, positions)
		return
	}

	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("list open failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// Get handles GET /api/positions/{id}.
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, plan, events, err := h.positions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.Error("get position failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position": p,
		"plan":     plan,
		"exits":    events,
	})
}
