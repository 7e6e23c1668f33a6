package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// EventPasswordResetRequested is the event type consumed by the
// notification service.
const EventPasswordResetRequested = "auth.password_reset_requested"

const eventSource = "root-api"

// Event is the envelope published to Kafka.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// passwordResetPayload is the Data of an EventPasswordResetRequested event.
type passwordResetPayload struct {
	Email            string `json:"email"`
	ResetURL         string `json:"reset_url"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// messageWriter is the subset of *kafka.Writer the transport needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaTransport publishes reset requests for an external notification
// service to render and deliver.
type kafkaTransport struct {
	writer  messageWriter
	topic   string
	brokers []string
}

// NewKafkaTransport creates a transport writing to KAFKA_MAIL_TOPIC.
func NewKafkaTransport(cfg config.MailConfig) Transport {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &kafkaTransport{writer: w, topic: cfg.KafkaTopic, brokers: cfg.KafkaBrokers}
}

func (t *kafkaTransport) Name() string { return config.MailTransportKafka }

func (t *kafkaTransport) IsConfigured() bool {
	return len(t.brokers) > 0 && t.topic != ""
}

func (t *kafkaTransport) Close() error { return t.writer.Close() }

func (t *kafkaTransport) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	data, err := json.Marshal(passwordResetPayload{
		Email:            msg.To,
		ResetURL:         msg.ResetURL,
		ExpiresInSeconds: int(msg.ExpiresIn.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	event := Event{
		EventID:   uuid.NewString(),
		EventType: EventPasswordResetRequested,
		Version:   1,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Data:      data,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Keyed by recipient so one user's requests stay ordered on a partition.
	err = t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish event to %s: %w", t.topic, err)
	}
	return nil
}
