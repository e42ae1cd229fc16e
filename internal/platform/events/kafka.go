package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events as JSON, keyed by aggregate id so events for
// one appointment land on one partition in order.
type KafkaPublisher struct {
	writer  *kafka.Writer
	brokers []string
	logger  zerolog.Logger
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		brokers: brokers,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Publish hands the message to a goroutine with its own deadline so a slow
// broker never holds up the HTTP response. Delivery errors are logged.
func (p *KafkaPublisher) Publish(_ context.Context, evt Event) error {
	value, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.TenantID + ":" + evt.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
		},
		Time: evt.OccurredAt,
	}

	go func() {
		// The request context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Warn().Err(err).
				Str("event_id", evt.ID).
				Str("event_type", evt.Type).
				Msg("kafka publish failed")
		}
	}()
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Ping dials the first reachable broker. Used by the health endpoint.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, b := range p.brokers {
		dialer := &kafka.Dialer{Timeout: 3 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", strings.TrimSpace(b))
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no kafka brokers configured")
	}
	return lastErr
}
