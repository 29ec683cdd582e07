package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/crownedlabs/tradetrack/internal/platform/polygon"
	"github.com/crownedlabs/tradetrack/internal/service"
)

// Orchestrator runs the long-lived loops as one errgroup: the tracking
// scheduler, the optional market data stream, and the optional archive cron.
// Cancellation of the parent context shuts everything down cleanly; any
// other failure cancels the siblings and surfaces.
type Orchestrator struct {
	tracker  *service.Tracker
	stream   *polygon.Stream // nil when streaming is disabled
	archiver *ArchiveRunner  // nil when archiving is disabled
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. stream and archiver may be nil.
func NewOrchestrator(tracker *service.Tracker, stream *polygon.Stream, archiver *ArchiveRunner, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		tracker:  tracker,
		stream:   stream,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured loop and blocks until ctx is cancelled or a
// loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.tracker.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tracker: %w", err)
	})

	if o.stream != nil {
		g.Go(func() error {
			err := o.stream.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
