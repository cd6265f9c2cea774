package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/updown/internal/config"
	"github.com/alanyoungcy/updown/internal/domain"
)

const operatorKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testConfig(mode string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Store.Driver = "memory"
	cfg.Roles.Owner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	cfg.Roles.Operators = []string{cfg.Roles.Owner}
	cfg.Keeper.PrivateKey = operatorKey
	return &cfg
}

func TestWireInProcess(t *testing.T) {
	cfg := testConfig("full")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Engine == nil || deps.Hub == nil || deps.Roles == nil {
		t.Fatalf("engine=%v hub=%v roles=%v", deps.Engine, deps.Hub, deps.Roles)
	}
	if !deps.Roles.Has(domain.RoleOperator, cfg.Roles.Owner) {
		t.Fatal("operator role not seeded")
	}
	if deps.Operator.Address().Hex() != cfg.Roles.Owner {
		t.Fatalf("operator = %s", deps.Operator.Address().Hex())
	}
	if deps.SignalBus != nil || deps.Archiver != nil || deps.Notifier != nil {
		t.Fatal("optional infrastructure wired without configuration")
	}

	st, err := deps.Engine.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Phase() != domain.PhaseGenesisPending || st.Params.OracleAddress != cfg.Oracle.Address {
		t.Fatalf("state = %+v", st)
	}
	if err := deps.Engine.GenesisStartRound(context.Background(), cfg.Roles.Owner); err != nil {
		t.Fatalf("genesis start: %v", err)
	}
}

func TestWireRemoteKeeper(t *testing.T) {
	cfg := testConfig("keeper")
	cfg.Keeper.RemoteURL = "http://localhost:8000"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Engine != nil || deps.Ledger != nil {
		t.Fatal("remote keeper wired a local engine")
	}
	if deps.Operator == nil {
		t.Fatal("operator key not loaded")
	}
}

func TestWireRejectsBadKey(t *testing.T) {
	cfg := testConfig("keeper")
	cfg.Keeper.PrivateKey = "0xnothex"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, _, err := Wire(context.Background(), cfg, logger); err == nil {
		t.Fatal("Wire accepted a malformed key")
	}
}
