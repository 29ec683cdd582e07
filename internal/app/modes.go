package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crownedlabs/tradetrack/internal/pipeline"
	"github.com/crownedlabs/tradetrack/internal/server"
	"github.com/crownedlabs/tradetrack/internal/server/handler"
	"github.com/crownedlabs/tradetrack/internal/service"
)

// services holds the domain services built from wired dependencies.
type services struct {
	tracker    *service.Tracker
	positions  *service.PositionService
	contracts  *service.ContractService
	reconciler *service.Reconciler
}

// buildServices assembles the service layer on top of wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	exits := service.NewExitProcessor(
		deps.PositionStore,
		deps.EventStore,
		deps.Notifier,
		deps.SignalBus,
		a.cfg.Tracker.DryRun,
		a.logger,
	)

	tracker := service.NewTracker(
		deps.PositionStore,
		deps.PlanStore,
		deps.Market,
		deps.QuoteCache,
		deps.LockManager,
		exits,
		service.TrackerConfig{
			Interval:    a.cfg.Tracker.Interval.Duration,
			QuoteTTL:    a.cfg.Tracker.QuoteTTL.Duration,
			LockTTL:     a.cfg.Tracker.LockTTL.Duration,
			MarketOpen:  a.cfg.Tracker.MarketOpen,
			MarketClose: a.cfg.Tracker.MarketClose,
			Timezone:    a.cfg.Tracker.Timezone,
		},
		a.logger,
	)

	contracts := service.NewContractService(deps.Market, deps.Selector, a.logger)
	positions := service.NewPositionService(
		deps.PositionStore, deps.PlanStore, deps.EventStore, contracts, a.logger,
	)

	svcs := &services{
		tracker:   tracker,
		positions: positions,
		contracts: contracts,
	}
	if deps.Broker != nil {
		svcs.reconciler = service.NewReconciler(deps.PositionStore, deps.Broker, deps.SignalBus, a.logger)
	}
	return svcs
}

// buildOrchestrator wires the background goroutines for track and full mode.
func (a *App) buildOrchestrator(deps *Dependencies, svcs *services) *pipeline.Orchestrator {
	var archiveRunner *pipeline.ArchiveRunner
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiveRunner = pipeline.NewArchiveRunner(deps.Archiver, a.cfg.Archive.Schedule, a.logger)
	}
	return pipeline.NewOrchestrator(svcs.tracker, deps.Stream, archiveRunner, a.logger)
}

// TrackMode runs the tracking loop (plus stream and archive schedule when
// configured) until the context is cancelled.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode",
		slog.Duration("interval", a.cfg.Tracker.Interval.Duration),
		slog.Bool("dry_run", a.cfg.Tracker.DryRun),
	)
	svcs := a.buildServices(deps)
	return a.buildOrchestrator(deps, svcs).Run(ctx)
}

// OnceMode runs exactly one tracking pass and exits. Useful from cron or for
// smoke-testing a deployment.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	result, err := svcs.tracker.Tick(ctx)
	if err != nil {
		return fmt.Errorf("app: once: %w", err)
	}
	a.logger.InfoContext(ctx, "tick complete",
		slog.Int("evaluated", result.Evaluated),
		slog.Int("exits", result.Exits),
		slog.Int("errors", result.Errors),
		slog.Bool("skipped", result.Skipped),
	)
	return nil
}

// ReconcileMode runs a single broker reconciliation pass and logs the report.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	if svcs.reconciler == nil {
		return fmt.Errorf("app: reconcile: broker is not configured")
	}
	report, err := svcs.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: reconcile: %w", err)
	}
	if report.Clean() {
		a.logger.InfoContext(ctx, "reconcile clean",
			slog.Int("tracked", report.Tracked),
			slog.Int("broker_held", report.BrokerHeld),
		)
		return nil
	}
	for _, d := range report.Drifts {
		a.logger.WarnContext(ctx, "position drift",
			slog.String("kind", string(d.Kind)),
			slog.String("symbol", d.Symbol),
			slog.Int("tracked_units", d.TrackedUnits),
			slog.Float64("broker_units", d.BrokerUnits),
		)
	}
	return nil
}

// ServerMode runs only the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	srv := a.buildServer(deps, svcs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// FullMode runs the tracking loop, stream, archive schedule, and HTTP API
// together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	orch := a.buildOrchestrator(deps, svcs)
	srv := a.buildServer(deps, svcs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// buildServer assembles the HTTP server with all handlers registered.
func (a *App) buildServer(deps *Dependencies, svcs *services) *server.Server {
	var streamHealthy func() bool
	if deps.Stream != nil {
		streamHealthy = deps.Stream.Healthy
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Postgres, deps.Redis, streamHealthy),
		Positions: handler.NewPositionHandler(svcs.positions, a.logger),
		Track:     handler.NewTrackHandler(svcs.tracker, a.logger),
		Selector:  handler.NewSelectorHandler(svcs.contracts, a.logger),
	}
	if svcs.reconciler != nil {
		handlers.Reconcile = handler.NewReconcileHandler(svcs.reconciler, a.logger)
	}

	return server.NewServer(server.Config{
		Addr:         a.cfg.Server.Addr,
		APIKey:       a.cfg.Server.APIKey,
		AllowOrigins: a.cfg.Server.AllowOrigins,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, handlers, a.logger)
}
