package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/views-collector/internal/application/dto"
	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const (
	DefaultSubject = "collector.snapshot"
	drainTimeout   = 5 * time.Second
)

// asyncPublisher is the part of nats.JetStreamContext the publisher needs.
type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
	PublishAsyncComplete() <-chan struct{}
}

// NATSPublisher implements EventPublisher for NATS JetStream
type NATSPublisher struct {
	nc      *nats.Conn
	js      asyncPublisher
	subject string
	logger  *logger.Logger
}

var _ port.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a new NATS publisher
func NewNATSPublisher(natsURL, subject string, log *logger.Logger) (*NATSPublisher, error) {
	// Connect to NATS with retry
	nc, err := nats.Connect(natsURL,
		nats.Name("views-collector"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Get JetStream context
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	log.Info("Connected to NATS", "url", natsURL)

	publisher := newPublisher(js, subject, log)
	publisher.nc = nc
	return publisher, nil
}

func newPublisher(js asyncPublisher, subject string, log *logger.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{
		js:      js,
		subject: subject,
		logger:  log,
	}
}

// PublishSnapshot publishes the event asynchronously. The invocation id is
// used as the JetStream message id so a retried invocation is deduplicated.
func (p *NATSPublisher) PublishSnapshot(ctx context.Context, event dto.SnapshotEventDTO) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	opts := []nats.PubOpt{}
	if event.InvocationID != "" {
		opts = append(opts, nats.MsgId(event.InvocationID))
	}

	if _, err := p.js.PublishAsync(p.subject, data, opts...); err != nil {
		p.logger.Error("Failed to publish event", err,
			"subject", p.subject,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", p.subject,
		"size", len(data),
	)

	return nil
}

// Close waits briefly for pending acks and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(drainTimeout):
		p.logger.Warn("Pending NATS acks not confirmed before close")
	}

	if p.nc != nil {
		p.logger.Info("Closing NATS connection")
		p.nc.Close()
	}
	return nil
}
