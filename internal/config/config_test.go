package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	ownerAddr    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	operatorAddr = "0x1111111111111111111111111111111111111111"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Roles.Owner = ownerAddr
	cfg.Roles.Operators = []string{operatorAddr}
	cfg.Keeper.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	return cfg
}

func TestDefaultsNeedRoles(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("defaults validated without roles")
	}
	for _, want := range []string{"roles: owner must be set", "roles: at least one operator", "keeper: either private_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}

	valid := validConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown driver"},
		{"buffer not below interval", func(c *Config) { c.Round.Buffer.Duration = c.Round.Interval.Duration }, "buffer must be"},
		{"fee above cap", func(c *Config) { c.Round.TreasuryFeeBps = 1001 }, "treasury_fee_bps"},
		{"zero min bet", func(c *Config) { c.Round.MinBetAmount = 0 }, "min_bet_amount"},
		{"redis feed without redis", func(c *Config) { c.Oracle.Address = "redis:btc" }, "requires redis.enabled"},
		{"contract feed without rpc", func(c *Config) { c.Oracle.Address = ownerAddr }, "rpc_url is required"},
		{"garbage oracle", func(c *Config) { c.Oracle.Address = "btc" }, "neither a feed name"},
		{"bad role address", func(c *Config) { c.Roles.Admins = []string{"alice"} }, `"alice" is not an address`},
		{"half api key", func(c *Config) { c.Auth.APIKey = "k" }, "set together"},
		{"bad archive cron", func(c *Config) { c.S3.Enabled = true; c.Keeper.ArchiveCron = "often" }, "archive_cron"},
		{"encrypted key without password", func(c *Config) { c.Keeper.EncryptedKeyPath = "key.json" }, "key_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestRemoteKeeperSkipsEngineChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "keeper"
	cfg.Keeper.RemoteURL = "http://api:8000"
	cfg.Roles = RolesConfig{}
	cfg.Store.Driver = ""
	if cfg.RunsEngine() {
		t.Fatal("remote keeper should not run the engine")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updown.toml")
	body := `
mode = "server"

[store]
driver = "memory"

[round]
interval = "1m"
buffer = "10s"
min_bet_amount = 5

[roles]
owner = "` + ownerAddr + `"
operators = ["` + operatorAddr + `"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UPDOWN_ROUND_TREASURY_FEE_BPS", "250")
	t.Setenv("UPDOWN_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "server" || cfg.Store.Driver != "memory" {
		t.Fatalf("mode=%q driver=%q", cfg.Mode, cfg.Store.Driver)
	}
	if cfg.Round.Interval.Duration != time.Minute || cfg.Round.Buffer.Duration != 10*time.Second {
		t.Fatalf("round timing = %v/%v", cfg.Round.Interval, cfg.Round.Buffer)
	}
	if cfg.Round.TreasuryFeeBps != 250 {
		t.Fatalf("fee = %d", cfg.Round.TreasuryFeeBps)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Oracle.UpdateAllowance.Duration != 300*time.Second {
		t.Fatalf("default allowance lost: %v", cfg.Oracle.UpdateAllowance)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Auth.APISecret = "secret"
	cfg.Roles.Admins = []string{ownerAddr}

	out := RedactedConfig(&cfg)
	if out.Keeper.PrivateKey != redacted || out.Postgres.Password != redacted || out.Auth.APISecret != redacted {
		t.Fatalf("secrets leaked: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Fatal("empty secret should stay empty")
	}
	out.Roles.Admins[0] = "changed"
	if cfg.Roles.Admins[0] != ownerAddr {
		t.Fatal("redacted copy aliases the original slice")
	}
}
