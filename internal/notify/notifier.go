// Package notify delivers structured exit and tracking notifications to one
// or more external channels (Discord webhook, Telegram). The message shape is
// independent of any chat platform's wire format; each sender renders it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Field is one key/value line of a notification.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is the platform-independent notification payload.
type Message struct {
	Title  string
	Fields []Field
	Body   string
}

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans a message out to every configured sender. Send reports
// failure when any sender fails, so callers gating state changes on delivery
// can abort and retry the whole operation.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// HasSenders reports whether at least one channel is configured.
func (n *Notifier) HasSenders() bool { return len(n.senders) > 0 }

// Send delivers msg to all senders. It returns an error when any sender
// failed; successfully delivered channels are not retried by this call.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", msg.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// renderText flattens a message into plain markdown-ish text, shared by
// senders without a native field layout.
func renderText(msg Message) string {
	var b strings.Builder
	for _, f := range msg.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	if msg.Body != "" {
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
