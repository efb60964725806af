package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// ProducerConfig configures a Producer. The producer is not bound to a topic:
// every message names its own, so one writer serves all queues.
type ProducerConfig struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
	Logger       zerolog.Logger
}

type Message struct {
	Topic string
	Key   string
	Value []byte
}

type producerMetrics struct {
	MessagesPublished atomic.Int64
	MessagesFailed    atomic.Int64
	RetriesTotal      atomic.Int64
	PublishDuration   atomic.Int64 // nanoseconds, summed
}

type Metrics struct {
	MessagesPublished int64
	MessagesFailed    int64
	RetriesTotal      int64
	AvgPublishTime    time.Duration
}

// Producer writes to Kafka over a single shared transport. The transport and
// writer are created on first use.
type Producer struct {
	config  ProducerConfig
	logger  zerolog.Logger
	metrics producerMetrics
	closed  atomic.Bool

	mu        sync.Mutex
	transport *kafkago.Transport
	writer    *kafkago.Writer
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	return &Producer{
		config: cfg,
		logger: cfg.Logger.With().Str("component", "kafka_producer").Logger(),
	}, nil
}

func validateConfig(cfg *ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers list is empty")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got: %d", cfg.MaxRetries)
	}
	if cfg.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative, got: %v", cfg.RetryBackoff)
	}
	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative, got: %v", cfg.WriteTimeout)
	}
	return nil
}

func setDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
}

// sharedTransport returns the transport, creating it on first call.
func (p *Producer) sharedTransport() *kafkago.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transportLocked()
}

func (p *Producer) transportLocked() *kafkago.Transport {
	if p.transport == nil {
		p.transport = &kafkago.Transport{
			DialTimeout: p.config.WriteTimeout,
			IdleTimeout: time.Minute,
			ClientID:    "newsroom",
		}
	}
	return p.transport
}

func (p *Producer) getWriter() *kafkago.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		p.writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(p.config.Brokers...),
			Balancer:               &kafkago.LeastBytes{},
			Transport:              p.transportLocked(),
			MaxAttempts:            1, // повторы делаем сами, см. Publish
			BatchSize:              p.config.BatchSize,
			BatchTimeout:           p.config.BatchTimeout,
			WriteTimeout:           p.config.WriteTimeout,
			RequiredAcks:           kafkago.RequireAll,
			Async:                  p.config.Async,
			AllowAutoTopicCreation: true,
		}
	}
	return p.writer
}

// Publish writes one message to topic, retrying transient failures.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.PublishBatch(ctx, []Message{{Topic: topic, Key: key, Value: value}})
}

func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if p.closed.Load() {
		return fmt.Errorf("producer is closed")
	}
	if len(messages) == 0 {
		return nil
	}

	batch := make([]kafkago.Message, len(messages))
	for i, m := range messages {
		if m.Topic == "" {
			return fmt.Errorf("message %d: topic is empty", i)
		}
		batch[i] = kafkago.Message{Topic: m.Topic, Key: []byte(m.Key), Value: m.Value}
	}

	start := time.Now()
	w := p.getWriter()

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.RetriesTotal.Add(1)
			backoff := p.config.RetryBackoff * time.Duration(attempt)
			p.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			select {
			case <-ctx.Done():
				p.metrics.MessagesFailed.Add(int64(len(batch)))
				return fmt.Errorf("kafka publish: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		err = w.WriteMessages(ctx, batch...)
		if err == nil {
			p.metrics.MessagesPublished.Add(int64(len(batch)))
			p.metrics.PublishDuration.Add(int64(time.Since(start)))
			return nil
		}
		if !isRetriableError(err) {
			break
		}
	}

	p.metrics.MessagesFailed.Add(int64(len(batch)))
	return fmt.Errorf("kafka publish: %w", err)
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var kerr kafkago.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"invalid message", "message too large", "authorization failed"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	// connection refused/reset, i/o timeout, leader not available и всё неизвестное
	return true
}

func (p *Producer) GetMetrics() Metrics {
	published := p.metrics.MessagesPublished.Load()
	m := Metrics{
		MessagesPublished: published,
		MessagesFailed:    p.metrics.MessagesFailed.Load(),
		RetriesTotal:      p.metrics.RetriesTotal.Load(),
	}
	if published > 0 {
		m.AvgPublishTime = time.Duration(p.metrics.PublishDuration.Load() / published)
	}
	return m
}

// HealthCheck asks the cluster for metadata over the shared transport.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return fmt.Errorf("producer is closed")
	}
	client := &kafkago.Client{
		Addr:      kafkago.TCP(p.config.Brokers...),
		Transport: p.sharedTransport(),
		Timeout:   p.config.WriteTimeout,
	}
	if _, err := client.Metadata(ctx, &kafkago.MetadataRequest{}); err != nil {
		return fmt.Errorf("kafka health check: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("producer already closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.writer != nil {
		err = p.writer.Close()
	}
	if p.transport != nil {
		p.transport.CloseIdleConnections()
	}

	m := p.GetMetrics()
	p.logger.Info().
		Int64("published", m.MessagesPublished).
		Int64("failed", m.MessagesFailed).
		Int64("retries", m.RetriesTotal).
		Msg("kafka producer closed")
	return err
}
