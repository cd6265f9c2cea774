package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/updown/internal/blob/s3"
	"github.com/alanyoungcy/updown/internal/authz"
	"github.com/alanyoungcy/updown/internal/cache/redis"
	"github.com/alanyoungcy/updown/internal/config"
	"github.com/alanyoungcy/updown/internal/crypto"
	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/engine"
	"github.com/alanyoungcy/updown/internal/notify"
	"github.com/alanyoungcy/updown/internal/oracle"
	"github.com/alanyoungcy/updown/internal/server/handler"
	"github.com/alanyoungcy/updown/internal/server/ws"
	"github.com/alanyoungcy/updown/internal/store/memory"
	"github.com/alanyoungcy/updown/internal/store/postgres"
	"github.com/alanyoungcy/updown/internal/store/sqlite"
)

// engineLockKey names the Redis lock serializing engine units across
// processes.
const engineLockKey = "engine"

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Engine and its stores. Nil when a keeper drives a remote API.
	Engine *engine.Engine
	Ledger domain.Ledger
	Vault  domain.ValueLedger
	Audit  domain.AuditStore
	Roles  *authz.Registry

	// Redis-backed infrastructure, nil when Redis is disabled.
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Round archive, nil when S3 is disabled.
	Blobs    domain.BlobReader
	Archiver domain.Archiver

	Hub      *ws.Hub
	Notifier *notify.Notifier

	// Operator is the keeper's signing key, nil in server mode.
	Operator *crypto.Signer

	// Checks are pinged by the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Operator key ---
	if cfg.Mode == "keeper" || cfg.Mode == "full" {
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Keeper.PrivateKey,
			EncryptedKeyPath: cfg.Keeper.EncryptedKeyPath,
			KeyPassword:      cfg.Keeper.KeyPassword,
		})
		if err != nil {
			return fail("operator key", err)
		}
		deps.Operator = signer
		logger.InfoContext(ctx, "operator key loaded", slog.String("address", signer.Address().Hex()))
	}

	if !cfg.RunsEngine() {
		return deps, cleanup, nil
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		redisClient = rc
		deps.RateLimiter = redis.NewRateLimiter(rc, cfg.Auth.RateLimit, cfg.Auth.RateWindow.Duration)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.Checks["redis"] = rc.Ping
	}

	// --- Ledger store ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Vault = postgres.NewBalanceStore(pool, cfg.Roles.House)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pool.Ping

	case "sqlite":
		sqlClient, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = sqlClient.Close() })

		db := sqlClient.DB()
		deps.Ledger = sqlite.NewLedgerStore(db)
		deps.Vault = sqlite.NewBalanceStore(db, cfg.Roles.House)
		deps.Audit = sqlite.NewAuditStore(db)
		deps.Checks["sqlite"] = db.PingContext

	default:
		logger.WarnContext(ctx, "using in-memory ledger; state is lost on restart")
		deps.Ledger = memory.NewLedger()
		deps.Vault = memory.NewVault()
	}

	// --- Oracle ---
	var chain domain.FeedResolver
	if cfg.Oracle.RPCURL != "" {
		eth, err := ethclient.DialContext(ctx, cfg.Oracle.RPCURL)
		if err != nil {
			return fail("oracle rpc", err)
		}
		closers = append(closers, eth.Close)
		chain = oracle.NewChainlinkResolver(eth)
	}
	router := oracle.NewRouter(chain)
	if strings.HasPrefix(cfg.Oracle.Address, "manual:") {
		router.Handle("manual:", oracle.StaticResolver{cfg.Oracle.Address: oracle.NewManualFeed()})
	}
	if redisClient != nil {
		router.Handle(redis.FeedScheme, redis.NewFeedResolver(redisClient))
	}
	gateway := oracle.NewGateway(router, logger, oracle.WithStrictStaleness(cfg.Oracle.StrictStaleness))

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		store := s3blob.NewStore(s3Client, cfg.S3.PartSizeMB<<20)
		deps.Blobs = store
		deps.Archiver = s3blob.NewArchiver(store, deps.Ledger, deps.Audit)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Event destinations ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return fail("telegram", err)
		}
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		dc, err := notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL)
		if err != nil {
			return fail("discord", err)
		}
		senders = append(senders, dc)
	}

	var sinks []domain.EventPublisher
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, notify.Formatter{
			AmountDecimals: cfg.Notify.AmountDecimals,
			PriceDecimals:  cfg.Notify.PriceDecimals,
			Symbol:         cfg.Notify.Symbol,
		}, logger)
		sinks = append(sinks, deps.Notifier)
	}
	if cfg.Mode != "keeper" {
		// With a bus the hub reads events back from Redis, which also
		// covers engines running in other processes.
		deps.Hub = ws.NewHub(deps.SignalBus, cfg.Mode, logger)
		if deps.SignalBus == nil {
			sinks = append(sinks, deps.Hub)
		}
	}
	publisher := notify.NewPublisher(deps.Audit, deps.SignalBus, logger, sinks...)

	// --- Engine ---
	deps.Roles = authz.NewRegistry(cfg.Roles.Owner, cfg.Roles.Admins, cfg.Roles.Operators)
	opts := []engine.Option{engine.WithPublisher(publisher)}
	if redisClient != nil {
		opts = append(opts, engine.WithLockManager(redis.NewLockManager(redisClient)))
	}
	deps.Engine = engine.New(engine.Config{
		Defaults: domain.Params{
			Interval:              cfg.Round.Interval.Duration,
			Buffer:                cfg.Round.Buffer.Duration,
			MinBetAmount:          cfg.Round.MinBetAmount,
			TreasuryFeeBps:        cfg.Round.TreasuryFeeBps,
			OracleAddress:         cfg.Oracle.Address,
			OracleUpdateAllowance: cfg.Oracle.UpdateAllowance.Duration,
		},
		TreasuryAccount: cfg.Roles.Treasury,
		LockKey:         engineLockKey,
		LockTTL:         cfg.Redis.LockTTL.Duration,
	},
		deps.Ledger,
		gateway,
		deps.Vault,
		deps.Roles,
		logger,
		opts...,
	)
	if err := deps.Engine.Init(ctx); err != nil {
		return fail("engine init", err)
	}

	return deps, cleanup, nil
}
