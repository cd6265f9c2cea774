package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updown/internal/crypto"
	"github.com/alanyoungcy/updown/internal/keeper"
	"github.com/alanyoungcy/updown/internal/server"
	"github.com/alanyoungcy/updown/internal/server/handler"
)

// ServerMode serves the HTTP API and the WebSocket stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// KeeperMode drives the round schedule and, when S3 is configured, the
// round archive.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering keeper mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startKeeper(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and the keeper against one in-process
// engine.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startKeeper(ctx, g, deps)
	return g.Wait()
}

// startKeeper adds the keeper loop and the archive cron to g.
func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var op keeper.Operator
	if a.cfg.Keeper.RemoteURL != "" {
		op = keeper.NewRemoteOperator(a.cfg.Keeper.RemoteURL, deps.Operator, crypto.APIKeyAuth{
			Key:    a.cfg.Auth.APIKey,
			Secret: a.cfg.Auth.APISecret,
		})
		a.logger.InfoContext(ctx, "keeper driving remote API", slog.String("url", a.cfg.Keeper.RemoteURL))
	} else {
		op = keeper.LocalOperator{Engine: deps.Engine, Caller: deps.Operator.Address().Hex()}
	}

	k := keeper.New(op, a.cfg.Keeper.PollInterval.Duration, a.logger)
	g.Go(func() error {
		return k.Run(ctx)
	})

	if deps.Archiver != nil {
		job := keeper.NewArchiveJob(deps.Archiver, op, a.cfg.Keeper.ArchiveLookback, a.logger)
		g.Go(func() error {
			return job.RunCron(ctx, a.cfg.Keeper.ArchiveCron)
		})
	}
}

// startHTTPServer adds the HTTP server and the WebSocket hub to g. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Engine, deps.Checks, a.cfg.Mode, a.logger),
		Rounds: handler.NewRoundHandler(deps.Engine, a.logger),
		Bets:   handler.NewBetHandler(deps.Engine, a.logger),
		Admin:  handler.NewAdminHandler(deps.Engine, a.logger),
	}
	if deps.Blobs != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Blobs, a.logger)
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, deps.Roles, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey: crypto.APIKeyAuth{
			Key:    a.cfg.Auth.APIKey,
			Secret: a.cfg.Auth.APISecret,
		},
		SignatureSkew: a.cfg.Auth.SignatureSkew.Duration,
		RateLimit:     a.cfg.Auth.RateLimit,
		RateWindow:    a.cfg.Auth.RateWindow.Duration,
	}, handlers, deps.Hub, deps.RateLimiter, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
