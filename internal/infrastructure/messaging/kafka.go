// Package messaging shares revocations between littlejwt instances over Kafka.
// Every instance publishes the entries it stores and applies the entries
// published by the others to its local backend.
package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/littlejwt/pkg/config"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationEvent is the message body.
type RevocationEvent struct {
	ID        string     `json:"id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Origin    string     `json:"origin"`
}

// NewKafkaWriter creates a writer for the broadcast topic. Messages are keyed
// by token id so every event for one token lands on the same partition.
func NewKafkaWriter(cfg config.BroadcastConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaReader creates a reader for the broadcast topic. Without a
// configured group the reader joins a group of its own, named after origin.
func NewKafkaReader(cfg config.BroadcastConfig, origin string) *kafka.Reader {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "littlejwt-revocations-" + origin
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
}
