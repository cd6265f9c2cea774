// Package config defines the top-level configuration for the updown engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Round    RoundConfig    `toml:"round"`
	Roles    RolesConfig    `toml:"roles"`
	Auth     AuthConfig     `toml:"auth"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StoreConfig picks the ledger backend.
type StoreConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the single-node database file.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the engine runs single-process with an in-process event fanout.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the round
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int64  `toml:"part_size_mb"`
}

// OracleConfig selects the price feed. Address is the initial oracle
// address: "manual:<name>", "redis:<name>" or a Chainlink aggregator
// contract address.
type OracleConfig struct {
	Address         string   `toml:"address"`
	RPCURL          string   `toml:"rpc_url"`
	UpdateAllowance duration `toml:"update_allowance"`
	StrictStaleness bool     `toml:"strict_staleness"`
}

// RoundConfig seeds the round parameters the first time the engine starts.
// Later changes go through the admin setters.
type RoundConfig struct {
	Interval       duration `toml:"interval"`
	Buffer         duration `toml:"buffer"`
	MinBetAmount   int64    `toml:"min_bet_amount"`
	TreasuryFeeBps int64    `toml:"treasury_fee_bps"`
}

// RolesConfig seeds the role registry.
type RolesConfig struct {
	Owner     string   `toml:"owner"`
	Admins    []string `toml:"admins"`
	Operators []string `toml:"operators"`
	// Treasury receives treasury claims. Empty pays the calling admin.
	Treasury string `toml:"treasury"`
	// House is the account holding staked value in the SQL balance stores.
	House string `toml:"house"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKey        string   `toml:"api_key"`
	APISecret     string   `toml:"api_secret"`
	SignatureSkew duration `toml:"signature_skew"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
}

// KeeperConfig holds the external trigger settings.
type KeeperConfig struct {
	PollInterval duration `toml:"poll_interval"`
	// RemoteURL makes the keeper drive an API server instead of the
	// in-process engine.
	RemoteURL        string `toml:"remote_url"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ArchiveCron      string `toml:"archive_cron"`
	ArchiveLookback  int64  `toml:"archive_lookback"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials and display units.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    int64    `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Symbol            string   `toml:"symbol"`
	AmountDecimals    int32    `toml:"amount_decimals"`
	PriceDecimals     int32    `toml:"price_decimals"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Driver: "sqlite"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updown",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "updown.db"},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "updown",
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updown-archive",
			ForcePathStyle: true,
			PartSizeMB:     8,
		},
		Oracle: OracleConfig{
			Address:         "manual:default",
			UpdateAllowance: duration{300 * time.Second},
		},
		Round: RoundConfig{
			Interval:       duration{300 * time.Second},
			Buffer:         duration{30 * time.Second},
			MinBetAmount:   1_000_000_000_000_000,
			TreasuryFeeBps: 300,
		},
		Roles: RolesConfig{House: "house"},
		Auth: AuthConfig{
			SignatureSkew: duration{5 * time.Minute},
			RateLimit:     60,
			RateWindow:    duration{time.Minute},
		},
		Keeper: KeeperConfig{
			PollInterval:    duration{time.Second},
			ArchiveCron:     "*/15 * * * *",
			ArchiveLookback: 1000,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:         []string{"rewards_calculated", "treasury_claim", "pause", "unpause"},
			Symbol:         "BNB",
			AmountDecimals: 18,
			PriceDecimals:  8,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"keeper": true,
	"full":   true,
}

// validDrivers enumerates the accepted values for Store.Driver.
var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"memory":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsEngine reports whether the process hosts the engine itself. A keeper
// with a remote URL does not.
func (c *Config) RunsEngine() bool {
	return c.Mode != "keeper" || c.Keeper.RemoteURL == ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.RunsEngine() {
		errs = append(errs, c.validateEngine()...)
	}

	// Keeper: the operator key signs or identifies every scheduler call.
	if c.Mode == "keeper" || c.Mode == "full" {
		if c.Keeper.PrivateKey == "" && c.Keeper.EncryptedKeyPath == "" {
			errs = append(errs, "keeper: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Keeper.EncryptedKeyPath != "" && c.Keeper.KeyPassword == "" {
			errs = append(errs, "keeper: key_password is required when encrypted_key_path is set")
		}
		if c.Keeper.PollInterval.Duration <= 0 {
			errs = append(errs, "keeper: poll_interval must be > 0")
		}
		if c.S3.Enabled {
			if _, err := cron.ParseStandard(c.Keeper.ArchiveCron); err != nil {
				errs = append(errs, fmt.Sprintf("keeper: archive_cron %q: %v", c.Keeper.ArchiveCron, err))
			}
		}
	}

	// Server
	if c.Mode == "server" || c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if (c.Auth.APIKey == "") != (c.Auth.APISecret == "") {
			errs = append(errs, "auth: api_key and api_secret must be set together")
		}
		if c.Auth.SignatureSkew.Duration <= 0 {
			errs = append(errs, "auth: signature_skew must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateEngine() []string {
	var errs []string

	if !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite, memory)", c.Store.Driver))
	}
	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Oracle
	switch {
	case c.Oracle.Address == "":
		errs = append(errs, "oracle: address must not be empty")
	case strings.HasPrefix(c.Oracle.Address, "manual:"):
	case strings.HasPrefix(c.Oracle.Address, "redis:"):
		if !c.Redis.Enabled {
			errs = append(errs, "oracle: redis feed requires redis.enabled")
		}
	default:
		if !common.IsHexAddress(c.Oracle.Address) {
			errs = append(errs, fmt.Sprintf("oracle: address %q is neither a feed name nor a contract address", c.Oracle.Address))
		}
		if c.Oracle.RPCURL == "" {
			errs = append(errs, "oracle: rpc_url is required for a contract feed")
		}
	}
	if c.Oracle.UpdateAllowance.Duration <= 0 {
		errs = append(errs, "oracle: update_allowance must be > 0")
	}

	// Round
	if c.Round.Interval.Duration <= 0 {
		errs = append(errs, "round: interval must be > 0")
	}
	if c.Round.Buffer.Duration < 0 || c.Round.Buffer.Duration >= c.Round.Interval.Duration {
		errs = append(errs, "round: buffer must be >= 0 and < interval")
	}
	if c.Round.MinBetAmount <= 0 {
		errs = append(errs, "round: min_bet_amount must be > 0")
	}
	if c.Round.TreasuryFeeBps < 0 || c.Round.TreasuryFeeBps > 1000 {
		errs = append(errs, fmt.Sprintf("round: treasury_fee_bps must be 0-1000, got %d", c.Round.TreasuryFeeBps))
	}

	// Roles
	if c.Roles.Owner == "" {
		errs = append(errs, "roles: owner must be set")
	}
	for _, addr := range append(append([]string{c.Roles.Owner, c.Roles.Treasury}, c.Roles.Admins...), c.Roles.Operators...) {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("roles: %q is not an address", addr))
		}
	}
	if len(c.Roles.Operators) == 0 {
		errs = append(errs, "roles: at least one operator is required")
	}

	return errs
}
