package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/convictiond/internal/server"
	"github.com/alanyoungcy/convictiond/internal/server/handler"
	"github.com/alanyoungcy/convictiond/internal/server/ws"
	"github.com/alanyoungcy/convictiond/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown after the run context ends.
const shutdownTimeout = 10 * time.Second

// ServeMode runs the full settlement API: market lifecycle, vote ingestion,
// resolution, claims, and the projection WebSocket feed. In dev mode the
// same surface runs on in-memory stores with the enclave stub; the /ws
// endpoint is absent because there is no Redis feed to relay.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc := service.NewMarketService(
		deps.Markets,
		deps.Votes,
		deps.Cache,
		deps.Projector,
		a.cfg.Engine.CreatorSeed,
		a.cfg.Engine.MinDuration.Duration,
		a.logger,
	)
	voteSvc := service.NewVoteService(
		deps.Markets,
		deps.Votes,
		deps.Enclave,
		deps.Projector,
		deps.Notifier,
		a.logger,
	)
	resolveSvc := service.NewResolutionService(
		deps.Markets,
		deps.Votes,
		deps.Enclave,
		deps.Cache,
		deps.Locks,
		deps.Projector,
		deps.Archiver,
		deps.Notifier,
		a.cfg.Engine.GracePeriod.Duration,
		a.logger,
	)
	claimSvc := service.NewClaimService(
		deps.Markets,
		deps.Votes,
		deps.Claims,
		deps.Treasury,
		deps.Notifier,
		a.logger,
	)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Votes:   handler.NewVoteHandler(voteSvc, a.logger),
		Resolve: handler.NewResolveHandler(resolveSvc, a.logger),
		Claims:  handler.NewClaimHandler(claimSvc, a.logger),
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
