package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sayan/internal/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "FINANCE"

// NatsPublisher publishes events to JetStream under finance.<event type>.
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNatsPublisher(url string, log logger.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"finance.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		// The stream may already exist with a different config, or the
		// server is still starting; publishing will surface real failures.
		log.Warn("notification", "failed to ensure stream", map[string]interface{}{
			"stream": streamName,
			"error":  err,
		})
	}

	return &NatsPublisher{nc: nc, js: js}, nil
}

func Subject(event Event) string {
	return "finance." + event.EventType()
}

func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := Subject(event)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
