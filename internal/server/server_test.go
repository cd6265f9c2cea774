package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/updown/internal/authz"
	"github.com/alanyoungcy/updown/internal/crypto"
	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/engine"
	"github.com/alanyoungcy/updown/internal/oracle"
	"github.com/alanyoungcy/updown/internal/server/handler"
	"github.com/alanyoungcy/updown/internal/store/memory"
)

// Throwaway hardhat keys #0 (operator/admin) and #1 (bettor).
const (
	operatorKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	userKey     = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	vault    *memory.Vault
	operator *crypto.Signer
	user     *crypto.Signer
	apiKey   crypto.APIKeyAuth
	elapsed  time.Duration
}

func (a *testAPI) now() time.Time { return t0.Add(a.elapsed) }

// advance moves the shared engine and server clock forward by d.
func (a *testAPI) advance(d time.Duration) { a.elapsed += d }

func newTestAPI(t *testing.T, apiKey crypto.APIKeyAuth) *testAPI {
	t.Helper()
	return newLimitedTestAPI(t, apiKey, nil, 0)
}

func newLimitedTestAPI(t *testing.T, apiKey crypto.APIKeyAuth, limiter domain.RateLimiter, limit int) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	op, err := crypto.NewSigner(operatorKey)
	if err != nil {
		t.Fatal(err)
	}
	user, err := crypto.NewSigner(userKey)
	if err != nil {
		t.Fatal(err)
	}

	vault := memory.NewVault()
	vault.Deposit(user.Address().Hex(), 1000)
	roles := authz.NewRegistry(op.Address().Hex(), []string{op.Address().Hex()}, []string{op.Address().Hex()})
	gw := oracle.NewGateway(oracle.StaticResolver{"manual:btc": oracle.NewManualFeed()}, logger)
	api := &testAPI{t: t, vault: vault, operator: op, user: user, apiKey: apiKey, elapsed: 10 * time.Second}
	clock := api.now

	eng := engine.New(engine.Config{Defaults: domain.Params{
		Interval:              300 * time.Second,
		Buffer:                30 * time.Second,
		MinBetAmount:          10,
		TreasuryFeeBps:        300,
		OracleAddress:         "manual:btc",
		OracleUpdateAllowance: 300 * time.Second,
	}}, memory.NewLedger(), gw, vault, roles, logger, engine.WithClock(clock))
	if err := eng.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	handlers := Handlers{
		Health: handler.NewHealthHandler(eng, nil, "test", logger),
		Rounds: handler.NewRoundHandler(eng, logger),
		Bets:   handler.NewBetHandler(eng, logger),
		Admin:  handler.NewAdminHandler(eng, logger),
	}
	cfg := Config{APIKey: apiKey, SignatureSkew: time.Minute, RateLimit: limit, RateWindow: time.Minute}
	api.handler = NewHandler(cfg, handlers, nil, limiter, clock, logger)
	return api
}

// do sends a request signed by signer (nil for anonymous) and decodes the
// JSON response into out when given.
func (a *testAPI) do(signer *crypto.Signer, method, path string, body any, out any) int {
	a.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	ts := a.now().Unix()
	if signer != nil {
		if err := signer.SignRequest(req, raw, ts); err != nil {
			a.t.Fatal(err)
		}
	}
	if a.apiKey.Enabled() {
		for k, v := range a.apiKey.Headers(method, req.URL.Path, raw, ts) {
			req.Header.Set(k, v)
		}
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestBettingFlow(t *testing.T) {
	api := newTestAPI(t, crypto.APIKeyAuth{})

	if code := api.do(nil, http.MethodPost, "/api/v1/admin/genesis/start", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous genesis: status %d", code)
	}
	var errBody struct{ Error, Category string }
	if code := api.do(api.user, http.MethodPost, "/api/v1/admin/genesis/start", nil, &errBody); code != http.StatusForbidden {
		t.Fatalf("user genesis: status %d", code)
	}
	if errBody.Category != "authorization error" {
		t.Fatalf("category = %q", errBody.Category)
	}
	if code := api.do(api.operator, http.MethodPost, "/api/v1/admin/genesis/start", nil, nil); code != http.StatusOK {
		t.Fatalf("operator genesis: status %d", code)
	}

	// Betting opens strictly after the round's start time.
	if code := api.do(api.user, http.MethodPost, "/api/v1/bets/bull", map[string]int64{"epoch": 1, "amount": 100}, nil); code != http.StatusBadRequest {
		t.Fatalf("bet at start time: status %d", code)
	}
	api.advance(time.Second)

	if code := api.do(api.user, http.MethodPost, "/api/v1/bets/bull", map[string]int64{"epoch": 1, "amount": 100}, nil); code != http.StatusCreated {
		t.Fatalf("bet: status %d", code)
	}
	if code := api.do(api.user, http.MethodPost, "/api/v1/bets/bear", map[string]int64{"epoch": 1, "amount": 100}, &errBody); code != http.StatusBadRequest {
		t.Fatalf("second bet: status %d", code)
	}
	if code := api.do(api.user, http.MethodPost, "/api/v1/bets/sideways", map[string]int64{"epoch": 1, "amount": 100}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad position: status %d", code)
	}
	if got := api.vault.Balance(api.user.Address().Hex()); got != 900 {
		t.Fatalf("balance = %d", got)
	}

	var round domain.Round
	if code := api.do(nil, http.MethodGet, "/api/v1/rounds/1", nil, &round); code != http.StatusOK {
		t.Fatalf("get round: status %d", code)
	}
	if round.BullAmount != 100 || round.TotalAmount != 100 {
		t.Fatalf("round = %+v", round)
	}

	var history struct {
		Rounds []domain.UserRound `json:"rounds"`
		Total  int                `json:"total"`
	}
	if code := api.do(nil, http.MethodGet, "/api/v1/users/"+api.user.Address().Hex()+"/rounds", nil, &history); code != http.StatusOK {
		t.Fatalf("history: status %d", code)
	}
	if history.Total != 1 || len(history.Rounds) != 1 || history.Rounds[0].Bet.Amount != 100 {
		t.Fatalf("history = %+v", history)
	}

	if code := api.do(nil, http.MethodGet, "/api/v1/rounds/99", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing round: status %d", code)
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	api := newTestAPI(t, crypto.APIKeyAuth{})
	raw := []byte(`{"epoch":1,"amount":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bets/bull", bytes.NewReader([]byte(`{"epoch":1,"amount":999}`)))
	if err := api.user.SignRequest(req, raw, t0.Add(10*time.Second).Unix()); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestExpiredSignatureRejected(t *testing.T) {
	api := newTestAPI(t, crypto.APIKeyAuth{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", bytes.NewReader(nil))
	if err := api.user.SignRequest(req, nil, t0.Add(-time.Hour).Unix()); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAPIKeyGatesWrites(t *testing.T) {
	api := newTestAPI(t, crypto.APIKeyAuth{Key: "k", Secret: "s"})
	if code := api.do(api.operator, http.MethodPost, "/api/v1/admin/pause", nil, nil); code != http.StatusOK {
		t.Fatalf("keyed pause: status %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/unpause", nil)
	if err := api.operator.SignRequest(req, nil, t0.Add(10*time.Second).Unix()); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unkeyed unpause: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("public read: status %d", rec.Code)
	}
}

func TestSetParamsWhilePaused(t *testing.T) {
	api := newTestAPI(t, crypto.APIKeyAuth{})
	fee := int64(500)

	if code := api.do(api.operator, http.MethodPut, "/api/v1/admin/params", map[string]*int64{"treasury_fee_bps": &fee}, nil); code != http.StatusBadRequest {
		t.Fatalf("unpaused params: status %d", code)
	}
	if code := api.do(api.operator, http.MethodPost, "/api/v1/admin/pause", nil, nil); code != http.StatusOK {
		t.Fatalf("pause: status %d", code)
	}
	var applied struct{ Applied []string }
	if code := api.do(api.operator, http.MethodPut, "/api/v1/admin/params", map[string]*int64{"treasury_fee_bps": &fee}, &applied); code != http.StatusOK {
		t.Fatalf("params: status %d", code)
	}
	if len(applied.Applied) != 1 || applied.Applied[0] != "treasury_fee" {
		t.Fatalf("applied = %v", applied.Applied)
	}

	var st domain.State
	api.do(nil, http.MethodGet, "/api/v1/state", nil, &st)
	if st.Params.TreasuryFeeBps != 500 || !st.Paused {
		t.Fatalf("state = %+v", st)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrBetTooSmall, http.StatusBadRequest},
		{domain.ErrNotOperator, http.StatusForbidden},
		{domain.ErrMissingCaller, http.StatusUnauthorized},
		{domain.ErrOracleStale, http.StatusBadGateway},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{domain.ErrNotEligibleClaim, http.StatusConflict},
		{domain.ErrBalanceInsufficient, http.StatusPaymentRequired},
		{domain.ErrGuardHeld, http.StatusConflict},
		{domain.ErrGuardTimeout, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := handler.StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// countingLimiter allows limit calls per key and ignores the window.
type countingLimiter struct {
	seen map[string]int
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

func (l *countingLimiter) Wait(ctx context.Context, key string) error { return nil }

func TestRateLimitPerCaller(t *testing.T) {
	limiter := &countingLimiter{seen: make(map[string]int)}
	api := newLimitedTestAPI(t, crypto.APIKeyAuth{}, limiter, 2)

	for i := 0; i < 2; i++ {
		if code := api.do(api.user, http.MethodGet, "/api/v1/state", nil, nil); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := api.do(api.user, http.MethodGet, "/api/v1/state", nil, nil); code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", code)
	}
	// Another caller has its own budget.
	if code := api.do(api.operator, http.MethodGet, "/api/v1/state", nil, nil); code != http.StatusOK {
		t.Fatalf("operator request: status %d", code)
	}
}
