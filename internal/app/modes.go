package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedvm/internal/feed"
	"github.com/alanyoungcy/tradedvm/internal/pipeline"
	"github.com/alanyoungcy/tradedvm/internal/relay"
	"github.com/alanyoungcy/tradedvm/internal/server"
	"github.com/alanyoungcy/tradedvm/internal/server/handler"
	"github.com/alanyoungcy/tradedvm/internal/server/ws"
	"github.com/alanyoungcy/tradedvm/internal/service"
)

// services holds the service layer shared by every mode.
type services struct {
	listings *service.ListingService
	trades   *service.TradeService
}

// ingest holds the running ingestion components.
type ingest struct {
	orchestrator *pipeline.Orchestrator
	feed         *feed.RelayFeed
	archiver     *pipeline.Archiver
}

func (a *App) buildServices(deps *Dependencies) (*services, error) {
	listings, err := service.NewListingService(
		deps.Listings, deps.ListingCache, a.cfg.Cache.LRUSize, a.cfg.Codec.TagOptions(), a.logger,
	)
	if err != nil {
		return nil, err
	}
	return &services{
		listings: listings,
		trades:   service.NewTradeService(listings, deps.Messages, a.logger),
	}, nil
}

// IngestMode follows the configured relays and stores what they send.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	if _, err := a.startIngest(ctx, g, deps, svcs); err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}
	return g.Wait()
}

// ServerMode serves the HTTP API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs, nil)
	return g.Wait()
}

// FullMode runs ingestion and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	in, err := a.startIngest(ctx, g, deps, svcs)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, in)
	}
	return g.Wait()
}

func (a *App) startIngest(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) (*ingest, error) {
	cfg := a.cfg

	processor := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Listings: svcs.listings,
		Messages: svcs.trades,
		Rejects:  deps.Rejects,
		Seen:     deps.SeenSet,
		Bus:      deps.SignalBus,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
	}, cfg.Pipeline.Workers, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(
			deps.Archiver, deps.Rejects, deps.LockManager, deps.Notifier,
			cfg.Pipeline.ArchiveRetentionDays, a.logger,
		)
		if deps.EventArchive != nil {
			archiver.WithEventRetention(deps.EventArchive, cfg.Pipeline.EventRetentionDays)
		}
	}
	var events pipeline.EventArchive
	if cfg.Pipeline.ArchiveEvents && deps.EventArchive != nil {
		events = deps.EventArchive
	}

	orch := pipeline.NewOrchestrator(processor, events, archiver, pipeline.OrchestratorConfig{
		BatchSize:     cfg.Pipeline.BatchSize,
		FlushInterval: cfg.Pipeline.FlushInterval.Duration,
		ArchiveCron:   cfg.Pipeline.ArchiveCron,
	}, deps.Metrics, a.logger)

	filter := feed.BuildFilter(
		cfg.Relay.Kinds,
		cfg.Relay.Authors,
		time.Duration(cfg.Relay.SinceHours)*time.Hour,
		time.Now(),
	)
	rf, err := feed.NewRelayFeed(cfg.Relay.URLs, []relay.Filter{filter}, orch.Handle, feed.Options{
		Relay: relay.Options{
			PingPeriod: cfg.Relay.PingInterval.Duration,
			MaxBackoff: cfg.Relay.MaxBackoff.Duration,
		},
	}, deps.Metrics, a.logger)
	if err != nil {
		return nil, err
	}

	g.Go(func() error {
		return orch.Run(ctx, rf)
	})
	a.logger.InfoContext(ctx, "ingestion started",
		slog.Any("relays", cfg.Relay.URLs),
		slog.Any("kinds", cfg.Relay.Kinds),
		slog.Bool("archive", archiver != nil),
	)
	return &ingest{orchestrator: orch, feed: rf, archiver: archiver}, nil
}

// startHTTPServer runs the API until ctx ends. in is nil when this process
// does not ingest.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services, in *ingest) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt}, a.logger)
	g.Go(func() error {
		return ignoreCanceled(hub.Run(ctx))
	})

	var relays func() []string
	var pipelineHandler *handler.PipelineHandler
	if in != nil {
		relays = in.feed.Connected
		var runner handler.ArchiveRunner
		if in.archiver != nil {
			runner = in.archiver
		}
		pipelineHandler = handler.NewPipelineHandler(in.orchestrator, runner, a.logger)
		if deps.EventArchive != nil {
			pipelineHandler = pipelineHandler.WithBatchReader(deps.EventArchive)
		}
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimitRPS: a.cfg.Server.RateLimitRPS,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, startedAt, relays),
		Listings: handler.NewListingHandler(svcs.listings, a.logger),
		Trade:    handler.NewTradeHandler(svcs.trades, a.logger),
		Pipeline: pipelineHandler,
		Hub:      hub,
	}, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
