package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type BrokerConfig struct {
	Brokers []string
	// GroupPrefix is prepended to the queue name to form the consumer group.
	GroupPrefix string
	// ReconnectInterval is the fixed wait between reader reconnect attempts.
	ReconnectInterval time.Duration
	CommitTimeout     time.Duration
	Producer          ProducerConfig
	Logger            zerolog.Logger
}

// Broker maps queues onto Kafka topics. Each queue is consumed by a consumer
// group; acks commit the contiguous prefix of settled offsets per partition,
// a requeued message is left uncommitted so it replays on the next group
// session, and a dropped message is copied to the queue's .dlq topic first.
//
// Kafka keeps no delivery count, so Delivery.Redelivered is derived from the
// offsets this Broker has already handed out: a requeued message replayed to
// a restarted subscription is flagged, a replay after a process restart is not.
type Broker struct {
	cfg      BrokerConfig
	producer *Producer
	logger   zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool

	seenMu sync.Mutex
	seen   map[string]map[int]int64 // queue -> partition -> highest fetched offset
}

var _ broker.Broker = (*Broker)(nil)

func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers list is empty")
	}
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = "newsroom-"
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}
	cfg.Producer.Brokers = cfg.Brokers
	cfg.Producer.Logger = cfg.Logger

	p, err := NewProducer(cfg.Producer)
	if err != nil {
		return nil, err
	}
	return &Broker{
		cfg:      cfg,
		producer: p,
		logger:   cfg.Logger.With().Str("component", "kafka_broker").Logger(),
		subs:     make(map[*subscription]struct{}),
		seen:     make(map[string]map[int]int64),
	}, nil
}

// observe records a fetched offset and reports whether it was fetched before.
func (b *Broker) observe(queue string, partition int, offset int64) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	parts, ok := b.seen[queue]
	if !ok {
		parts = make(map[int]int64)
		b.seen[queue] = parts
	}
	if last, ok := parts[partition]; ok && offset <= last {
		return true
	}
	parts[partition] = offset
	return false
}

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if queue == "" {
		return fmt.Errorf("queue is required")
	}
	return b.producer.Publish(ctx, queue, "", body)
}

func (b *Broker) Subscribe(ctx context.Context, queue string, prefetch int) (broker.Subscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("queue is required")
	}
	if prefetch <= 0 {
		return nil, fmt.Errorf("prefetch must be positive, got: %d", prefetch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, broker.ErrClosed
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        b.cfg.Brokers,
		GroupID:        b.cfg.GroupPrefix + queue,
		Topic:          queue,
		QueueCapacity:  prefetch,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		ReadBackoffMin: b.cfg.ReconnectInterval,
		ReadBackoffMax: b.cfg.ReconnectInterval,
		CommitInterval: 0, // синхронные коммиты
		StartOffset:    kafkago.FirstOffset,
	})

	s := &subscription{
		queue:   queue,
		reader:  reader,
		broker:  b,
		slots:   make(chan struct{}, prefetch),
		pending: make(map[int][]*inflight),
		logger:  b.logger.With().Str("queue", queue).Logger(),
	}
	b.subs[s] = struct{}{}

	s.logger.Info().
		Str("group", b.cfg.GroupPrefix+queue).
		Int("prefetch", prefetch).
		Msg("kafka subscription started")
	return s, nil
}

// Producer exposes the shared producer for health checks and metrics.
func (b *Broker) Producer() *Producer { return b.producer }

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *Broker) forget(s *subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type inflight struct {
	msg  kafkago.Message
	done bool
}

type subscription struct {
	queue  string
	reader *kafkago.Reader
	broker *Broker
	slots  chan struct{}
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[int][]*inflight // per partition, in fetch order
	once    sync.Once
}

func (s *subscription) Next(ctx context.Context) (*broker.Delivery, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		<-s.slots
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("kafka fetch %s: %w", s.queue, err)
	}

	entry := &inflight{msg: msg}
	s.mu.Lock()
	s.pending[msg.Partition] = append(s.pending[msg.Partition], entry)
	s.mu.Unlock()

	redelivered := s.broker.observe(s.queue, msg.Partition, msg.Offset)
	return broker.NewDelivery(s.queue, msg.Value, redelivered, &acker{sub: s, entry: entry}), nil
}

// settle marks entry done and commits the highest offset of the contiguous
// settled prefix of its partition.
func (s *subscription) settle(entry *inflight) error {
	s.mu.Lock()
	entry.done = true
	last, rest := settledPrefix(s.pending[entry.msg.Partition])
	s.pending[entry.msg.Partition] = rest
	s.mu.Unlock()

	if last == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.broker.cfg.CommitTimeout)
	defer cancel()
	if err := s.reader.CommitMessages(ctx, *last); err != nil {
		return fmt.Errorf("kafka commit %s: %w", s.queue, err)
	}
	return nil
}

func settledPrefix(queue []*inflight) (*kafkago.Message, []*inflight) {
	var last *kafkago.Message
	n := 0
	for n < len(queue) && queue[n].done {
		last = &queue[n].msg
		n++
	}
	return last, queue[n:]
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.broker.forget(s)
		err = s.reader.Close()
	})
	return err
}

type acker struct {
	sub   *subscription
	entry *inflight
}

func (a *acker) Ack() error {
	defer func() { <-a.sub.slots }()
	return a.sub.settle(a.entry)
}

func (a *acker) Nack(requeue bool) error {
	defer func() { <-a.sub.slots }()
	if requeue {
		// не коммитим: сообщение придёт снова после перезапуска группы
		a.sub.logger.Debug().
			Int("partition", a.entry.msg.Partition).
			Int64("offset", a.entry.msg.Offset).
			Msg("message left uncommitted for redelivery")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.sub.broker.cfg.CommitTimeout)
	defer cancel()
	dlq := models.DeadLetterQueue(a.sub.queue)
	if err := a.sub.broker.producer.Publish(ctx, dlq, string(a.entry.msg.Key), a.entry.msg.Value); err != nil {
		return fmt.Errorf("dead-letter to %s: %w", dlq, err)
	}
	return a.sub.settle(a.entry)
}
