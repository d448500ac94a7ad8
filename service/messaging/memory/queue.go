// Package memory provides the in-process notice queue vendor. Delivery
// is at-least-once: every consumed message must be settled with Ack or
// Nack, and nacked messages are redelivered until the retry budget is
// exhausted, after which the payload is dead-lettered.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Automobile-System/taskengine/service/messaging"
)

// Config controls queue capacity and redelivery.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns the configuration used by the engine wiring.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Queue is a buffered in-memory messaging.Queue.
type Queue[T any] struct {
	config     Config
	deliveries chan *message[T]

	mu  sync.Mutex
	dlq []*T
}

var _ messaging.Queue[any] = (*Queue[any])(nil)

// NewQueue creates an in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		config:     config,
		deliveries: make(chan *message[T], config.QueueBuffer),
	}
}

// Publish enqueues a copy of the payload for delivery.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	return q.enqueue(ctx, &message[T]{id: uuid.New().String(), payload: *t, queue: q})
}

// Consume blocks until a message is available or ctx is done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case m := <-q.deliveries:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of messages waiting for delivery.
func (q *Queue[T]) Size() int { return len(q.deliveries) }

// DLQSize returns the number of dead-lettered payloads.
func (q *Queue[T]) DLQSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

func (q *Queue[T]) enqueue(ctx context.Context, m *message[T]) error {
	select {
	case q.deliveries <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry schedules a redelivery after the configured delay, or parks the
// payload on the dead letter queue once the retry budget runs out. The
// redelivered message is a fresh, unsettled copy carrying the attempt
// count forward.
func (q *Queue[T]) retry(m *message[T]) {
	if m.attempt <= q.config.MaxRetries {
		time.AfterFunc(q.config.RetryDelay, func() {
			_ = q.enqueue(context.Background(), &message[T]{
				id:      m.id,
				payload: m.payload,
				attempt: m.attempt,
				queue:   q,
			})
		})
		return
	}
	if q.config.DeadLetter {
		q.mu.Lock()
		q.dlq = append(q.dlq, &m.payload)
		q.mu.Unlock()
	}
}

type message[T any] struct {
	id      string
	payload T
	attempt int
	queue   *Queue[T]

	mu      sync.Mutex
	settled bool
}

// T returns the message payload.
func (m *message[T]) T() *T { return &m.payload }

// Ack marks the message as processed.
func (m *message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settle()
}

// Nack requests redelivery of the message.
func (m *message[T]) Nack(error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.settle(); err != nil {
		return err
	}
	m.attempt++
	m.queue.retry(m)
	return nil
}

func (m *message[T]) settle() error {
	if m.settled {
		return fmt.Errorf("message %s already settled", m.id)
	}
	m.settled = true
	return nil
}
