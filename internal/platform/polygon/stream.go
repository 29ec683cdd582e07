package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TradeHandler receives streamed trades for subscribed tickers.
type TradeHandler func(ctx context.Context, ticker string, price float64)

// Stream is a supervised websocket connection to the Polygon real-time feed.
// Run owns the connection: it authenticates, subscribes, dispatches trades,
// and reconnects with exponential backoff on any failure. Healthy reports
// whether a connection is currently live so callers can decide between
// streamed and polled quotes.
type Stream struct {
	wsURL   string
	apiKey  string
	topics  []string
	onTrade TradeHandler
	logger  *slog.Logger

	healthy atomic.Bool
}

// streamCommand is the control frame format: auth and subscribe.
type streamCommand struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// streamEvent covers the event fields shared by status and trade messages.
type streamEvent struct {
	EventType string  `json:"ev"`
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Symbol    string  `json:"sym"`
	Price     float64 `json:"p"`
}

// NewStream creates a stream for the given subscription topics, for example
// "T.O:AAPL260116C00190000" for per-contract trades.
func NewStream(wsURL, apiKey string, topics []string, onTrade TradeHandler, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:   wsURL,
		apiKey:  apiKey,
		topics:  topics,
		onTrade: onTrade,
		logger:  logger.With(slog.String("component", "polygon_stream")),
	}
}

// Healthy reports whether the stream currently has a live, authenticated
// connection.
func (s *Stream) Healthy() bool {
	return s.healthy.Load()
}

// Run connects and processes messages until ctx is cancelled, reconnecting
// with exponential backoff after each failure. The backoff resets once a
// connection authenticates.
func (s *Stream) Run(ctx context.Context) error {
	if len(s.topics) == 0 {
		s.logger.Info("no stream topics configured, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		err := s.runConnection(ctx)
		if s.healthy.Swap(false) {
			delay = reconnectDelay
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *Stream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polygon: stream connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go s.pingLoop(conn, done)

	if err := writeCommand(conn, streamCommand{Action: "auth", Params: s.apiKey}); err != nil {
		return fmt.Errorf("polygon: stream auth: %w", err)
	}
	if err := writeCommand(conn, streamCommand{Action: "subscribe", Params: strings.Join(s.topics, ",")}); err != nil {
		return fmt.Errorf("polygon: stream subscribe: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("polygon: stream read: %w", err)
		}

		var events []streamEvent
		if err := json.Unmarshal(data, &events); err != nil {
			s.logger.Warn("stream message decode failed", slog.String("error", err.Error()))
			continue
		}

		for _, ev := range events {
			switch ev.EventType {
			case "status":
				if ev.Status == "auth_success" {
					s.healthy.Store(true)
					s.logger.Info("stream authenticated", slog.Int("topics", len(s.topics)))
				}
				if ev.Status == "auth_failed" {
					return fmt.Errorf("polygon: stream auth failed: %s", ev.Message)
				}
			case "T":
				if s.onTrade != nil && ev.Price > 0 {
					s.onTrade(ctx, ev.Symbol, ev.Price)
				}
			}
		}
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func writeCommand(conn *websocket.Conn, cmd streamCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
