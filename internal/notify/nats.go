package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsConnectWait   = 5 * time.Second
	natsReconnectWait = 2 * time.Second
	natsMaxReconnects = -1
)

// publisher is the subset of *nats.Conn the sender needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSender publishes each notification as JSON on
// "<prefix>.<event>", e.g. "tradedvm.listing_rejected".
type NATSSender struct {
	pub    publisher
	prefix string
}

// NewNATSSender wraps an established connection.
func NewNATSSender(pub publisher, prefix string) *NATSSender {
	return &NATSSender{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// ConnectNATS dials url and logs connection state changes.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	logger = logger.With(slog.String("component", "nats"))
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(natsConnectWait),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject an event is published on.
func (s *NATSSender) Subject(event string) string {
	if event == "" {
		event = "unknown"
	}
	if s.prefix == "" {
		return event
	}
	return s.prefix + "." + event
}

func (s *NATSSender) Send(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("nats: marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.Subject(n.Event), data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", s.Subject(n.Event), err)
	}
	return nil
}

func (s *NATSSender) Name() string { return "nats" }
