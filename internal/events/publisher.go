package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// Publisher delivers event payloads to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Conn is the subset of *nats.Conn used by NATSPublisher
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on a NATS connection
type NATSPublisher struct {
	conn Conn
}

// ConnectNATS dials the NATS server at url
func ConnectNATS(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewNATSPublisher(conn), nil
}

// NewNATSPublisher wraps an existing connection
func NewNATSPublisher(conn Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct{}

// Publish implements Publisher
func (LogPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	slog.InfoContext(ctx, "event published",
		logger.Component("events"),
		logger.String("subject", subject),
		logger.String("payload", string(payload)),
	)
	return nil
}
