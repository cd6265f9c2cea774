package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when empty), merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Mode = strings.ToLower(cfg.Mode)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Driver, "UPDOWN_STORE_DRIVER")
	setStr(&cfg.SQLite.Path, "UPDOWN_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "UPDOWN_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "UPDOWN_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")
	setInt64(&cfg.S3.PartSizeMB, "UPDOWN_S3_PART_SIZE_MB")

	// ── Oracle ──
	setStr(&cfg.Oracle.Address, "UPDOWN_ORACLE_ADDRESS")
	setStr(&cfg.Oracle.RPCURL, "UPDOWN_ORACLE_RPC_URL")
	setDuration(&cfg.Oracle.UpdateAllowance, "UPDOWN_ORACLE_UPDATE_ALLOWANCE")
	setBool(&cfg.Oracle.StrictStaleness, "UPDOWN_ORACLE_STRICT_STALENESS")

	// ── Round ──
	setDuration(&cfg.Round.Interval, "UPDOWN_ROUND_INTERVAL")
	setDuration(&cfg.Round.Buffer, "UPDOWN_ROUND_BUFFER")
	setInt64(&cfg.Round.MinBetAmount, "UPDOWN_ROUND_MIN_BET_AMOUNT")
	setInt64(&cfg.Round.TreasuryFeeBps, "UPDOWN_ROUND_TREASURY_FEE_BPS")

	// ── Roles ──
	setStr(&cfg.Roles.Owner, "UPDOWN_ROLES_OWNER")
	setStringSlice(&cfg.Roles.Admins, "UPDOWN_ROLES_ADMINS")
	setStringSlice(&cfg.Roles.Operators, "UPDOWN_ROLES_OPERATORS")
	setStr(&cfg.Roles.Treasury, "UPDOWN_ROLES_TREASURY")
	setStr(&cfg.Roles.House, "UPDOWN_ROLES_HOUSE")

	// ── Auth ──
	setStr(&cfg.Auth.APIKey, "UPDOWN_AUTH_API_KEY")
	setStr(&cfg.Auth.APISecret, "UPDOWN_AUTH_API_SECRET")
	setDuration(&cfg.Auth.SignatureSkew, "UPDOWN_AUTH_SIGNATURE_SKEW")
	setInt(&cfg.Auth.RateLimit, "UPDOWN_AUTH_RATE_LIMIT")
	setDuration(&cfg.Auth.RateWindow, "UPDOWN_AUTH_RATE_WINDOW")

	// ── Keeper ──
	setDuration(&cfg.Keeper.PollInterval, "UPDOWN_KEEPER_POLL_INTERVAL")
	setStr(&cfg.Keeper.RemoteURL, "UPDOWN_KEEPER_REMOTE_URL")
	setStr(&cfg.Keeper.PrivateKey, "UPDOWN_KEEPER_PRIVATE_KEY")
	setStr(&cfg.Keeper.EncryptedKeyPath, "UPDOWN_KEEPER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Keeper.KeyPassword, "UPDOWN_KEEPER_KEY_PASSWORD")
	setStr(&cfg.Keeper.ArchiveCron, "UPDOWN_KEEPER_ARCHIVE_CRON")
	setInt64(&cfg.Keeper.ArchiveLookback, "UPDOWN_KEEPER_ARCHIVE_LOOKBACK")

	// ── Server ──
	setInt(&cfg.Server.Port, "UPDOWN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWN_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")
	setStr(&cfg.Notify.Symbol, "UPDOWN_NOTIFY_SYMBOL")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
