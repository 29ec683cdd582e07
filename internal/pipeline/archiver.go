// Package pipeline wires the long-running loops together: the tracking
// scheduler, the market data stream, and the cold-storage archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	s3blob "github.com/crownedlabs/tradetrack/internal/blob/s3"
)

// ArchiveRunner fires the monthly cold-storage export on a cron schedule.
type ArchiveRunner struct {
	archiver *s3blob.Archiver
	schedule string
	logger   *slog.Logger
}

// NewArchiveRunner creates a runner for the given 5-field cron expression,
// e.g. "15 0 1 * *" for 00:15 on the first of each month.
func NewArchiveRunner(archiver *s3blob.Archiver, schedule string, logger *slog.Logger) *ArchiveRunner {
	return &ArchiveRunner{
		archiver: archiver,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "archive_runner")),
	}
}

// Run waits out the cron schedule and exports the previous calendar month on
// each trigger, until ctx is cancelled.
func (ar *ArchiveRunner) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(ar.schedule)
	if err != nil {
		return fmt.Errorf("pipeline: parse archive schedule %q: %w", ar.schedule, err)
	}

	ar.logger.Info("archive runner started", slog.String("schedule", ar.schedule))
	for {
		next := sched.Next(time.Now().UTC())
		ar.logger.Info("next archive run scheduled", slog.Time("at", next))

		select {
		case <-ctx.Done():
			ar.logger.Info("archive runner stopped")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		// Export the month that just ended.
		prev := time.Now().UTC().AddDate(0, -1, 0)
		count, err := ar.archiver.ArchiveMonth(ctx, prev)
		if err != nil {
			ar.logger.Error("archive run failed", slog.String("error", err.Error()))
			continue
		}
		ar.logger.Info("archive run complete",
			slog.String("month", prev.Format("2006-01")),
			slog.Int("positions", count))
	}
}
