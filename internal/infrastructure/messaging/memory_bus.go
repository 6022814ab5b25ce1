package messaging

import (
	"context"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MemoryBus is an in-process stand-in for a Kafka topic. Every reader sees
// every message written after it subscribed. It lets instances in one
// process share revocations and backs the tests.
type MemoryBus struct {
	mu      sync.Mutex
	readers []*MemoryReader
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Writer returns a writer that fans messages out to all readers.
func (b *MemoryBus) Writer() MessageWriter {
	return memoryWriter{bus: b}
}

// Reader subscribes a new reader.
func (b *MemoryBus) Reader() *MemoryReader {
	r := &MemoryReader{
		messages: make(chan kafka.Message, 1024),
		closed:   make(chan struct{}),
	}
	b.mu.Lock()
	b.readers = append(b.readers, r)
	b.mu.Unlock()
	return r
}

type memoryWriter struct {
	bus *MemoryBus
}

func (w memoryWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.bus.mu.Lock()
	readers := append([]*MemoryReader(nil), w.bus.readers...)
	w.bus.mu.Unlock()

	for _, r := range readers {
		for _, m := range msgs {
			select {
			case r.messages <- m:
			case <-r.closed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (memoryWriter) Close() error { return nil }

// MemoryReader implements MessageReader over a MemoryBus subscription.
type MemoryReader struct {
	messages  chan kafka.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	committed []kafka.Message
}

func (r *MemoryReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-r.closed:
		return kafka.Message{}, io.EOF
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *MemoryReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.committed = append(r.committed, msgs...)
	r.mu.Unlock()
	return nil
}

// Committed returns the messages acknowledged so far.
func (r *MemoryReader) Committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func (r *MemoryReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
