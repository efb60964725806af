package broker

import (
	"context"
	"fmt"
	"sync"
)

type memMessage struct {
	body        []byte
	redelivered bool
}

type memQueue struct {
	mu    sync.Mutex
	items []memMessage
	dead  [][]byte
	ready chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{ready: make(chan struct{})}
}

func (q *memQueue) push(m memMessage, head bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if head {
		q.items = append([]memMessage{m}, q.items...)
	} else {
		q.items = append(q.items, m)
	}
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *memQueue) pop(ctx context.Context, closed <-chan struct{}) (memMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return memMessage{}, ctx.Err()
		case <-closed:
			return memMessage{}, ErrClosed
		case <-ready:
		}
	}
}

// MemoryBroker is an in-process Broker. Consumers of the same queue compete
// for messages; requeued messages go back to the head of the queue and dropped
// messages are kept as dead letters.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	closed chan struct{}
	once   sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string]*memQueue),
		closed: make(chan struct{}),
	}
}

var _ Broker = (*MemoryBroker)(nil)

func (b *MemoryBroker) queue(name string) *memQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newMemQueue()
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, body []byte) error {
	if queue == "" {
		return fmt.Errorf("queue is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.isClosed() {
		return ErrClosed
	}
	b.queue(queue).push(memMessage{body: append([]byte(nil), body...)}, false)
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, queue string, prefetch int) (Subscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("queue is required")
	}
	if prefetch <= 0 {
		return nil, fmt.Errorf("prefetch must be positive, got: %d", prefetch)
	}
	if b.isClosed() {
		return nil, ErrClosed
	}
	return &memSubscription{
		name:   queue,
		q:      b.queue(queue),
		slots:  make(chan struct{}, prefetch),
		closed: b.closed,
		done:   make(chan struct{}),
	}, nil
}

func (b *MemoryBroker) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// Len returns the number of messages waiting in queue.
func (b *MemoryBroker) Len(queue string) int {
	q := b.queue(queue)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DeadLetters returns copies of the messages dropped from queue.
func (b *MemoryBroker) DeadLetters(queue string) [][]byte {
	q := b.queue(queue)
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.dead))
	for i, d := range q.dead {
		out[i] = append([]byte(nil), d...)
	}
	return out
}

type memSubscription struct {
	name   string
	q      *memQueue
	slots  chan struct{}
	closed <-chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *memSubscription) Next(ctx context.Context) (*Delivery, error) {
	// захватываем слот prefetch до получения сообщения
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrClosed
	case <-s.done:
		return nil, ErrClosed
	}

	merged, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-merged.Done():
		}
	}()

	m, err := s.q.pop(merged, s.closed)
	if err != nil {
		<-s.slots
		if ctx.Err() == nil && merged.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	return NewDelivery(s.name, m.body, m.redelivered, &memAcker{sub: s, msg: m}), nil
}

func (s *memSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type memAcker struct {
	sub *memSubscription
	msg memMessage
}

func (a *memAcker) Ack() error {
	<-a.sub.slots
	return nil
}

func (a *memAcker) Nack(requeue bool) error {
	defer func() { <-a.sub.slots }()
	if requeue {
		a.sub.q.push(memMessage{body: a.msg.body, redelivered: true}, true)
		return nil
	}
	a.sub.q.mu.Lock()
	a.sub.q.dead = append(a.sub.q.dead, a.msg.body)
	a.sub.q.mu.Unlock()
	return nil
}
