package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updown/internal/domain"
)

// maxRoundsRange caps GET /api/v1/rounds.
const maxRoundsRange = 500

// RoundHandler serves read-only round, bet and user history endpoints.
type RoundHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(engine Engine, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{engine: engine, logger: logger}
}

// GetState returns the process state and parameters.
// GET /api/v1/state
func (h *RoundHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.State(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, "get state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetRound returns one round.
// GET /api/v1/rounds/{epoch}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	epoch, ok := pathInt(w, r, "epoch")
	if !ok {
		return
	}
	round, err := h.engine.Round(r.Context(), epoch)
	if err != nil {
		writeEngineError(w, r, h.logger, "get round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// ListRounds returns rounds in [from, to]. to defaults to the current
// epoch and from to the 20 epochs before it.
// GET /api/v1/rounds?from=1&to=20
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.State(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, "list rounds", err)
		return
	}
	to, ok := queryInt(w, r, "to", st.CurrentEpoch)
	if !ok {
		return
	}
	from, ok := queryInt(w, r, "from", max(to-19, 1))
	if !ok {
		return
	}
	if from > to || to-from >= maxRoundsRange {
		writeError(w, http.StatusBadRequest, "invalid range")
		return
	}

	rounds, err := h.engine.Rounds(r.Context(), from, to)
	if err != nil {
		writeEngineError(w, r, h.logger, "list rounds", err)
		return
	}
	if rounds == nil {
		rounds = []domain.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetBet returns a user's bet in a round with its claim status.
// GET /api/v1/rounds/{epoch}/bets/{user}
func (h *RoundHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	epoch, ok := pathInt(w, r, "epoch")
	if !ok {
		return
	}
	user := r.PathValue("user")
	bet, err := h.engine.BetInfo(r.Context(), epoch, user)
	if err != nil {
		writeEngineError(w, r, h.logger, "get bet", err)
		return
	}
	claimable, err := h.engine.Claimable(r.Context(), epoch, user)
	if err != nil {
		writeEngineError(w, r, h.logger, "get bet", err)
		return
	}
	refundable, err := h.engine.Refundable(r.Context(), epoch, user)
	if err != nil {
		writeEngineError(w, r, h.logger, "get bet", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bet":        bet,
		"claimable":  claimable,
		"refundable": refundable,
	})
}

// UserRounds pages through a user's betting history.
// GET /api/v1/users/{user}/rounds?cursor=0&size=50
func (h *RoundHandler) UserRounds(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	cursor, ok := queryInt(w, r, "cursor", 0)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "size", 50)
	if !ok {
		return
	}
	if size > 500 {
		size = 500
	}

	rounds, next, err := h.engine.UserRounds(r.Context(), user, int(cursor), int(size))
	if err != nil {
		writeEngineError(w, r, h.logger, "user rounds", err)
		return
	}
	total, err := h.engine.UserRoundsLength(r.Context(), user)
	if err != nil {
		writeEngineError(w, r, h.logger, "user rounds", err)
		return
	}
	if rounds == nil {
		rounds = []domain.UserRound{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rounds": rounds,
		"cursor": next,
		"total":  total,
	})
}
