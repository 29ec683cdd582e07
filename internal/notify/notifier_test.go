package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error
	sent int
}

func (s *stubSender) Send(ctx context.Context, msg Message) error {
	s.sent++
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFansOutToAllSenders(t *testing.T) {
	a := &stubSender{name: "a"}
	b := &stubSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, testLogger())

	require.True(t, n.HasSenders())
	err := n.Send(context.Background(), Message{Title: "exit"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.sent)
	assert.Equal(t, 1, b.sent)
}

func TestNotifierReportsPartialFailure(t *testing.T) {
	ok := &stubSender{name: "ok"}
	broken := &stubSender{name: "broken", err: errors.New("webhook down")}
	n := NewNotifier([]Sender{ok, broken}, testLogger())

	err := n.Send(context.Background(), Message{Title: "exit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	// The healthy channel still delivered.
	assert.Equal(t, 1, ok.sent)
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, testLogger())
	assert.False(t, n.HasSenders())
	assert.NoError(t, n.Send(context.Background(), Message{Title: "exit"}))
}

func TestDiscordSenderRendersEmbed(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Fields      []struct {
				Name   string `json:"name"`
				Value  string `json:"value"`
				Inline bool   `json:"inline"`
			} `json:"fields"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Message{
		Title: "Take profit level 1",
		Body:  "AAPL closed 50 units",
		Fields: []Field{
			{Name: "Symbol", Value: "AAPL", Inline: true},
			{Name: "Price", Value: "120.00", Inline: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Take profit level 1", got.Embeds[0].Title)
	assert.Equal(t, "AAPL closed 50 units", got.Embeds[0].Description)
	require.Len(t, got.Embeds[0].Fields, 2)
	assert.Equal(t, "Symbol", got.Embeds[0].Fields[0].Name)
	assert.True(t, got.Embeds[0].Fields[0].Inline)
}

func TestDiscordSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Message{Title: "exit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestRenderText(t *testing.T) {
	msg := Message{
		Fields: []Field{
			{Name: "Symbol", Value: "AAPL"},
			{Name: "Units", Value: "50"},
		},
		Body: "partial close",
	}
	assert.Equal(t, "Symbol: AAPL\nUnits: 50\npartial close", renderText(msg))
}
