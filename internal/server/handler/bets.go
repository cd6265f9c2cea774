package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/server/middleware"
)

// BetHandler serves the caller-authenticated bet and claim endpoints.
type BetHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(engine Engine, logger *slog.Logger) *BetHandler {
	return &BetHandler{engine: engine, logger: logger}
}

type betRequest struct {
	Epoch  int64 `json:"epoch"`
	Amount int64 `json:"amount"`
}

// PlaceBet stakes on bull or bear in the current round.
// POST /api/v1/bets/{position}
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	pos, err := domain.ParsePosition(r.PathValue("position"))
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	var req betRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := middleware.CallerFrom(r.Context())
	if err := h.engine.Bet(r.Context(), caller, req.Epoch, pos, req.Amount); err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.BetInfo{
		Epoch:    req.Epoch,
		User:     caller,
		Position: pos,
		Amount:   req.Amount,
	})
}

type claimRequest struct {
	Epochs []int64 `json:"epochs"`
}

// Claim pays out rewards and refunds for the listed epochs, all or nothing.
// POST /api/v1/claims
func (h *BetHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	total, err := h.engine.Claim(r.Context(), middleware.CallerFrom(r.Context()), req.Epochs)
	if err != nil {
		writeEngineError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"epochs": req.Epochs,
		"amount": total,
	})
}
