package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// Narrow store views required by the archiver. The Postgres stores satisfy
// these implicitly.

// PositionArchiveStore provides read access to closed positions.
type PositionArchiveStore interface {
	ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error)
}

// ExitArchiveStore provides read access to the exit trail.
type ExitArchiveStore interface {
	ListBetween(ctx context.Context, since, until time.Time) ([]domain.ExitEvent, error)
}

// Archiver exports closed positions and their exit events to cold storage as
// monthly JSONL objects. The export is copy-only: positions are never deleted
// from the primary store, which remains the source of truth for history and
// leaderboards.
type Archiver struct {
	writer    domain.BlobWriter
	positions PositionArchiveStore
	exits     ExitArchiveStore
	prefix    string
	logger    *slog.Logger
}

// NewArchiver creates an Archiver writing under the given key prefix.
func NewArchiver(writer domain.BlobWriter, positions PositionArchiveStore, exits ExitArchiveStore, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{
		writer:    writer,
		positions: positions,
		exits:     exits,
		prefix:    prefix,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveMonth exports every position closed in the calendar month containing
// ref, plus all exit events recorded in that month. Returns the number of
// positions exported.
func (a *Archiver) ArchiveMonth(ctx context.Context, ref time.Time) (int, error) {
	since := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 1, 0)

	positions, err := a.positions.ListClosedBetween(ctx, since, until)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}

	if len(positions) > 0 {
		buf, err := marshalJSONL(positions)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
		}
		key := a.archiveKey("positions", since)
		if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
		}
		a.logger.Info("archived closed positions",
			slog.String("key", key), slog.Int("count", len(positions)))
	}

	events, err := a.exits.ListBetween(ctx, since, until)
	if err != nil {
		return len(positions), fmt.Errorf("s3blob: archive exits query: %w", err)
	}
	if len(events) > 0 {
		buf, err := marshalJSONL(events)
		if err != nil {
			return len(positions), fmt.Errorf("s3blob: archive exits marshal: %w", err)
		}
		key := a.archiveKey("exits", since)
		if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
			return len(positions), fmt.Errorf("s3blob: archive exits upload: %w", err)
		}
		a.logger.Info("archived exit events",
			slog.String("key", key), slog.Int("count", len(events)))
	}

	return len(positions), nil
}

func (a *Archiver) archiveKey(kind string, month time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, kind, month.Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
