// Package notify fans ingest outcomes out to operators and downstream
// consumers. Each Notification is delivered to every registered Sender
// (Telegram, Discord, NATS) unless its event type is filtered out.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Event types.
const (
	EventListingStored   = "listing_stored"
	EventListingRejected = "listing_rejected"
	EventTradeMessage    = "trade_message"
	EventArchiveComplete = "archive_complete"
	EventError           = "error"
)

// Notification is one outcome worth telling someone about.
type Notification struct {
	Event   string            `json:"event"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// SortedFields returns Fields as key/value pairs ordered by key.
func (n Notification) SortedFields() [][2]string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, n.Fields[k]})
	}
	return out
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// Notifier dispatches notifications to its senders. Notify honours the
// configured event allow-list; NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Senders returns the names of the registered senders.
func (n *Notifier) Senders() []string {
	names := make([]string, len(n.senders))
	for i, s := range n.senders {
		names[i] = s.Name()
	}
	return names
}

// Allowed reports whether Notify would forward event.
func (n *Notifier) Allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers msg if its event type is allowed.
func (n *Notifier) Notify(ctx context.Context, msg Notification) error {
	if !n.Allowed(msg.Event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", msg.Event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifyAll delivers msg regardless of its event type.
func (n *Notifier) NotifyAll(ctx context.Context, msg Notification) error {
	return n.dispatch(ctx, msg)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, msg Notification) error {
	if len(n.senders) == 0 {
		return nil
	}
	if msg.At.IsZero() {
		msg.At = n.now().UTC()
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", msg.Event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
