// Package bus connects the pipeline to the NATS message bus.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// HandlerFunc processes one message payload.
type HandlerFunc func(ctx context.Context, data []byte) error

// Connect dials NATS with reconnect settings suited to long running services.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("platform/bus: connect: %w", err)
	}
	return conn, nil
}

// NATSPublisher publishes raw payloads to subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish sends msg on subject and flushes so the caller learns about
// delivery problems to the server before returning.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, msg []byte) error {
	if err := p.conn.Publish(subject, msg); err != nil {
		return fmt.Errorf("platform/bus: publish %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("platform/bus: flush %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NATSSubscriber delivers subject messages to handlers through a queue group,
// so several workers share the load.
type NATSSubscriber struct {
	conn   *nats.Conn
	group  string
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewNATSSubscriber wraps an established connection.
func NewNATSSubscriber(conn *nats.Conn, group string, logger *slog.Logger) *NATSSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSubscriber{conn: conn, group: group, logger: logger}
}

// Subscribe registers handler on subject. Handler errors are logged; the
// message is not redelivered.
func (s *NATSSubscriber) Subscribe(ctx context.Context, subject string, handler HandlerFunc) error {
	sub, err := s.conn.QueueSubscribe(subject, s.group, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			s.logger.Error("bus handler failed", slog.String("subject", msg.Subject), slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("platform/bus: subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains the connection.
func (s *NATSSubscriber) Close() error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	return s.conn.Drain()
}
