package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
)

// BroadcastBackend stores entries in the wrapped backend, then publishes them.
type BroadcastBackend struct {
	revocation.Backend
	writer MessageWriter
	origin string
	logger logger.Logger
}

// NewBroadcastBackend wraps inner. origin identifies this instance so its own
// events are ignored by its consumer.
func NewBroadcastBackend(inner revocation.Backend, writer MessageWriter, origin string, log logger.Logger) *BroadcastBackend {
	if log == nil {
		log = logger.L()
	}
	return &BroadcastBackend{
		Backend: inner,
		writer:  writer,
		origin:  origin,
		logger:  log.WithComponent("RevocationPublisher"),
	}
}

// Put stores the entry locally first. A failed publish is reported even
// though the local entry was written.
func (b *BroadcastBackend) Put(ctx context.Context, entry revocation.Entry, now time.Time) error {
	if err := b.Backend.Put(ctx, entry, now); err != nil {
		return err
	}

	body, err := json.Marshal(RevocationEvent{ID: entry.ID, ExpiresAt: entry.ExpiresAt, Origin: b.origin})
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(entry.ID), Value: body}); err != nil {
		b.logger.Error(ctx, "failed to publish revocation event", err, logger.String("id", entry.ID))
		return errors.Storage("broadcast", err)
	}
	b.logger.Debug(ctx, "revocation event published", logger.String("id", entry.ID))
	return nil
}
