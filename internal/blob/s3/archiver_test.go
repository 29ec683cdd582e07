package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

type fakeWriter struct {
	objects map[string][]byte
	err     error
}

func (w *fakeWriter) Write(ctx context.Context, key string, data []byte, contentType string) error {
	if w.err != nil {
		return w.err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[key] = data
	return nil
}

type fakePositionArchive struct {
	positions []domain.Position
	since     time.Time
	until     time.Time
}

func (f *fakePositionArchive) ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error) {
	f.since, f.until = since, until
	return f.positions, nil
}

type fakeExitArchive struct {
	events []domain.ExitEvent
}

func (f *fakeExitArchive) ListBetween(ctx context.Context, since, until time.Time) ([]domain.ExitEvent, error) {
	return f.events, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveMonthWritesMonthlyObjects(t *testing.T) {
	writer := &fakeWriter{}
	positions := &fakePositionArchive{positions: []domain.Position{
		{ID: "p1", Symbol: "AAPL", Status: domain.PositionStatusClosed},
		{ID: "p2", Symbol: "TSLA", Status: domain.PositionStatusClosed},
	}}
	exits := &fakeExitArchive{events: []domain.ExitEvent{
		{ID: "e1", PositionID: "p1"},
	}}

	a := NewArchiver(writer, positions, exits, "archive", discardLogger())
	n, err := a.ArchiveMonth(context.Background(), time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Query window covers the whole calendar month, end-exclusive.
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), positions.since)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), positions.until)

	require.Contains(t, writer.objects, "archive/positions/2025-06.jsonl")
	require.Contains(t, writer.objects, "archive/exits/2025-06.jsonl")

	lines := bytes.Split(bytes.TrimSpace(writer.objects["archive/positions/2025-06.jsonl"]), []byte("\n"))
	require.Len(t, lines, 2)
	var first domain.Position
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "p1", first.ID)
}

func TestArchiveMonthSkipsEmptyMonth(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(writer, &fakePositionArchive{}, &fakeExitArchive{}, "archive", discardLogger())

	n, err := a.ArchiveMonth(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
}

func TestArchiveMonthSurfacesUploadFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("bucket gone")}
	positions := &fakePositionArchive{positions: []domain.Position{{ID: "p1"}}}
	a := NewArchiver(writer, positions, &fakeExitArchive{}, "archive", discardLogger())

	_, err := a.ArchiveMonth(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")
}

func TestArchiverDefaultsPrefix(t *testing.T) {
	writer := &fakeWriter{}
	positions := &fakePositionArchive{positions: []domain.Position{{ID: "p1"}}}
	a := NewArchiver(writer, positions, &fakeExitArchive{}, "", discardLogger())

	_, err := a.ArchiveMonth(context.Background(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, writer.objects, "archive/positions/2025-03.jsonl")
}
