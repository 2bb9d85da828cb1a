package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solsync/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing operation events to NATS.
type Publisher interface {
	// PublishOperation publishes a single operation event to JetStream.
	// The event is published to the subject "ops.{account_address}".
	PublishOperation(ctx context.Context, event *OperationEvent) error

	// PublishOperationBatch publishes multiple operation events.
	// This is more efficient than calling PublishOperation multiple times.
	PublishOperationBatch(ctx context.Context, events []*OperationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes operation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for operations.
	StreamName = "OPERATIONS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "ops.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. m may be nil.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solsync-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Derived ledger operations from synchronized accounts",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishOperation publishes a single operation event.
func (p *JetStreamPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	subject := fmt.Sprintf("ops.%s", event.AccountAddress)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal operation event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish operation: %w", err)
	}

	p.logger.Debug("published operation event",
		"subject", subject,
		"operation_id", event.OperationID,
		"kind", event.Kind,
	)

	return nil
}

// PublishOperationBatch publishes multiple operation events efficiently.
func (p *JetStreamPublisher) PublishOperationBatch(ctx context.Context, events []*OperationEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.PublishOperation(ctx, event); err != nil {
			// Log error but continue with other events.
			p.logger.Error("failed to publish operation in batch",
				"operation_id", event.OperationID,
				"account", event.AccountAddress,
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published operation batch",
		"count", len(events),
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
