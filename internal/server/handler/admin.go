package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updown/internal/server/middleware"
)

// AdminHandler serves operator and admin commands. Role checks happen in
// the engine against the signed caller.
type AdminHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(engine Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, logger: logger}
}

// command adapts a caller-only engine operation to a handler.
func (h *AdminHandler) command(op string, fn func(ctx context.Context, caller string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), middleware.CallerFrom(r.Context())); err != nil {
			writeEngineError(w, r, h.logger, op, err)
			return
		}
		h.logger.InfoContext(r.Context(), "admin command",
			slog.String("op", op),
			slog.String("caller", middleware.CallerFrom(r.Context())),
		)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "op": op})
	}
}

// GenesisStart handles POST /api/v1/admin/genesis/start.
func (h *AdminHandler) GenesisStart() http.HandlerFunc {
	return h.command("genesis_start_round", h.engine.GenesisStartRound)
}

// GenesisLock handles POST /api/v1/admin/genesis/lock.
func (h *AdminHandler) GenesisLock() http.HandlerFunc {
	return h.command("genesis_lock_round", h.engine.GenesisLockRound)
}

// Execute handles POST /api/v1/admin/rounds/execute.
func (h *AdminHandler) Execute() http.HandlerFunc {
	return h.command("execute_round", h.engine.ExecuteRound)
}

// Pause handles POST /api/v1/admin/pause.
func (h *AdminHandler) Pause() http.HandlerFunc {
	return h.command("pause", h.engine.Pause)
}

// Unpause handles POST /api/v1/admin/unpause.
func (h *AdminHandler) Unpause() http.HandlerFunc {
	return h.command("unpause", h.engine.Unpause)
}

// paramsRequest carries any one parameter change. Durations are seconds.
type paramsRequest struct {
	BufferSeconds         *int64  `json:"buffer_seconds,omitempty"`
	IntervalSeconds       *int64  `json:"interval_seconds,omitempty"`
	MinBetAmount          *int64  `json:"min_bet_amount,omitempty"`
	TreasuryFeeBps        *int64  `json:"treasury_fee_bps,omitempty"`
	OracleAddress         *string `json:"oracle_address,omitempty"`
	OracleUpdateAllowance *int64  `json:"oracle_update_allowance_seconds,omitempty"`
}

// SetParams applies the parameter changes present in the body, in a fixed
// order, stopping at the first failure. The engine must be paused.
// PUT /api/v1/admin/params
func (h *AdminHandler) SetParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	caller := middleware.CallerFrom(ctx)
	secs := func(n int64) time.Duration { return time.Duration(n) * time.Second }

	var applied []string
	step := func(name string, fn func() error) bool {
		if err := fn(); err != nil {
			writeEngineError(w, r, h.logger, "set "+name, err)
			return false
		}
		applied = append(applied, name)
		return true
	}

	if (req.BufferSeconds == nil) != (req.IntervalSeconds == nil) {
		writeError(w, http.StatusBadRequest, "buffer_seconds and interval_seconds must be set together")
		return
	}
	if req.BufferSeconds != nil && !step("buffer_and_interval", func() error {
		return h.engine.SetBufferAndInterval(ctx, caller, secs(*req.BufferSeconds), secs(*req.IntervalSeconds))
	}) {
		return
	}
	if req.MinBetAmount != nil && !step("min_bet_amount", func() error {
		return h.engine.SetMinBetAmount(ctx, caller, *req.MinBetAmount)
	}) {
		return
	}
	if req.TreasuryFeeBps != nil && !step("treasury_fee", func() error {
		return h.engine.SetTreasuryFee(ctx, caller, *req.TreasuryFeeBps)
	}) {
		return
	}
	if req.OracleAddress != nil && !step("oracle", func() error {
		return h.engine.SetOracle(ctx, caller, *req.OracleAddress)
	}) {
		return
	}
	if req.OracleUpdateAllowance != nil && !step("oracle_update_allowance", func() error {
		return h.engine.SetOracleUpdateAllowance(ctx, caller, secs(*req.OracleUpdateAllowance))
	}) {
		return
	}

	if len(applied) == 0 {
		writeError(w, http.StatusBadRequest, "no parameters given")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

// ClaimTreasury drains the accumulated treasury.
// POST /api/v1/admin/treasury/claim
func (h *AdminHandler) ClaimTreasury(w http.ResponseWriter, r *http.Request) {
	amount, err := h.engine.ClaimTreasury(r.Context(), middleware.CallerFrom(r.Context()))
	if err != nil {
		writeEngineError(w, r, h.logger, "claim treasury", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}
