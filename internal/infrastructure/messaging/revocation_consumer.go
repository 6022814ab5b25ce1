package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// RevocationConsumer listens for revocation events from other instances and
// writes them to the local backend.
type RevocationConsumer struct {
	reader   MessageReader
	backend  revocation.Backend
	origin   string
	clock    utils.Clock
	logger   logger.Logger
	retry    time.Duration
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRevocationConsumer creates a consumer that applies events to backend.
// Events published by origin are skipped.
func NewRevocationConsumer(reader MessageReader, backend revocation.Backend, origin string, clock utils.Clock, log logger.Logger) *RevocationConsumer {
	if log == nil {
		log = logger.L()
	}
	return &RevocationConsumer{
		reader:  reader,
		backend: backend,
		origin:  origin,
		clock:   utils.ClockOrSystem(clock),
		logger:  log.WithComponent("RevocationConsumer"),
		retry:   time.Second,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the consumer loop until Stop is called or ctx is done. It's a
// blocking call and should be run in a goroutine.
func (c *RevocationConsumer) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.done)
	c.logger.Info(ctx, "starting revocation consumer")
	for {
		select {
		case <-c.stop:
			c.logger.Info(ctx, "stopping revocation consumer")
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if c.stopped() || ctx.Err() != nil {
				return
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			continue
		}

		var event RevocationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error(ctx, "failed to unmarshal revocation event", err, logger.String("kafka_message", string(msg.Value)))
			// Acknowledge the message to avoid reprocessing a poison pill.
			c.commit(ctx, msg)
			continue
		}

		if err := c.handleEvent(ctx, event); err != nil {
			c.logger.Error(ctx, "failed to handle revocation event", err, logger.String("id", event.ID))
			// Do not commit the message, allow for reprocessing.
			continue
		}
		c.commit(ctx, msg)
	}
}

// Stop shuts down the consumer and, when the loop is running, waits for it
// to exit.
func (c *RevocationConsumer) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		err = c.reader.Close()
		if c.started.Load() {
			<-c.done
		}
	})
	return err
}

func (c *RevocationConsumer) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *RevocationConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn(ctx, "failed to commit revocation event", logger.Err(err))
	}
}

func (c *RevocationConsumer) handleEvent(ctx context.Context, event RevocationEvent) error {
	if event.ID == "" {
		return fmt.Errorf("revocation event has no id")
	}
	if event.Origin == c.origin {
		return nil
	}

	now := c.clock.Now()
	entry := revocation.Entry{ID: event.ID, ExpiresAt: event.ExpiresAt}
	if entry.Expired(now) {
		c.logger.Warn(ctx, "received expired revocation event, skipping", logger.String("id", event.ID))
		return nil
	}

	c.logger.Debug(ctx, "applying remote revocation", logger.String("id", event.ID), logger.Duration("ttl", entry.TTL(now)))
	return c.backend.Put(ctx, entry, now)
}
