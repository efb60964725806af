package natsq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

const defaultPollInterval = 5 * time.Second

// Broker stores each queue in its own work-queue stream. Subscriptions are
// durable pull consumers; ack, requeue and drop map onto Ack, Nak and Term.
type Broker struct {
	conn         *Conn
	logger       zerolog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	streams map[string]bool
}

var _ broker.Broker = (*Broker)(nil)

func NewBroker(conn *Conn, logger zerolog.Logger) (*Broker, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats conn is required")
	}
	return &Broker{
		conn:         conn,
		logger:       logger.With().Str("component", "nats_broker").Logger(),
		pollInterval: defaultPollInterval,
		streams:      make(map[string]bool),
	}, nil
}

func streamName(queue string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "*", "_", ">", "_", " ", "_")
	return "NEWSROOM_" + strings.ToUpper(r.Replace(queue))
}

func durableName(queue string) string {
	return "newsroom-" + strings.NewReplacer(".", "-", "*", "-", ">", "-", " ", "-").Replace(queue)
}

func (b *Broker) ensureStream(js nats.JetStreamContext, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams[queue] {
		return nil
	}

	name := streamName(queue)
	cfg := &nats.StreamConfig{
		Name:      name,
		Subjects:  []string{queue, models.DeadLetterQueue(queue)},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	}
	if _, err := js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info %s: %w", name, err)
		}
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("add stream %s: %w", name, err)
		}
		b.logger.Info().Str("stream", name).Str("queue", queue).Msg("stream created")
	}
	b.streams[queue] = true
	return nil
}

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if queue == "" {
		return fmt.Errorf("queue is required")
	}
	js, err := b.conn.JetStream()
	if err != nil {
		return err
	}
	if err := b.ensureStream(js, queue); err != nil {
		return err
	}
	if _, err := js.Publish(queue, body, nats.Context(ctx)); err != nil {
		return fmt.Errorf("nats publish %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, queue string, prefetch int) (broker.Subscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("queue is required")
	}
	if prefetch <= 0 {
		return nil, fmt.Errorf("prefetch must be positive, got: %d", prefetch)
	}
	js, err := b.conn.JetStream()
	if err != nil {
		return nil, err
	}
	if err := b.ensureStream(js, queue); err != nil {
		return nil, err
	}

	sub, err := js.PullSubscribe(queue, durableName(queue),
		nats.BindStream(streamName(queue)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(prefetch),
	)
	if err != nil {
		return nil, fmt.Errorf("nats pull subscribe %s: %w", queue, err)
	}

	b.logger.Info().
		Str("queue", queue).
		Str("durable", durableName(queue)).
		Int("prefetch", prefetch).
		Msg("nats subscription started")

	return &subscription{
		queue:        queue,
		sub:          sub,
		js:           js,
		slots:        make(chan struct{}, prefetch),
		pollInterval: b.pollInterval,
	}, nil
}

func (b *Broker) Close() error {
	return b.conn.Close()
}

type subscription struct {
	queue        string
	sub          *nats.Subscription
	js           nats.JetStreamContext
	slots        chan struct{}
	pollInterval time.Duration
}

func (s *subscription) Next(ctx context.Context) (*broker.Delivery, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		pollCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
		msgs, err := s.sub.Fetch(1, nats.Context(pollCtx))
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				<-s.slots
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			<-s.slots
			return nil, fmt.Errorf("nats fetch %s: %w", s.queue, err)
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		redelivered := false
		if meta, err := msg.Metadata(); err == nil {
			redelivered = meta.NumDelivered > 1
		}
		return broker.NewDelivery(s.queue, msg.Data, redelivered, &acker{sub: s, msg: msg}), nil
	}
}

func (s *subscription) Close() error {
	// durable consumer остаётся на сервере, снимаем только подписку
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

type acker struct {
	sub *subscription
	msg *nats.Msg
}

func (a *acker) Ack() error {
	defer func() { <-a.sub.slots }()
	return a.msg.Ack()
}

func (a *acker) Nack(requeue bool) error {
	defer func() { <-a.sub.slots }()
	if requeue {
		return a.msg.Nak()
	}
	dlq := models.DeadLetterQueue(a.sub.queue)
	if _, err := a.sub.js.Publish(dlq, a.msg.Data); err != nil {
		return fmt.Errorf("dead-letter to %s: %w", dlq, err)
	}
	return a.msg.Term()
}
