package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

// Publisher реализует Outbox паттерн: события смены статуса, записанные
// вместе с job, публикуются в очередь broadcast-status.
// Гарантирует at-least-once delivery семантику.
type Publisher struct {
	store     repository.JobStore
	broker    broker.Broker
	queue     string
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

type PublisherConfig struct {
	Store     repository.JobStore
	Broker    broker.Broker
	Queue     string
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got: %d", cfg.BatchSize)
	}
	if cfg.Queue == "" {
		cfg.Queue = models.QueueBroadcastStatus
	}

	return &Publisher{
		store:     cfg.Store,
		broker:    cfg.Broker,
		queue:     cfg.Queue,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
	}, nil
}

// Start опрашивает outbox каждые interval и блокирует до отмены ctx.
// Ошибки отдельных событий не останавливают цикл: неопубликованное
// событие будет взято в следующем batch.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Str("queue", p.queue).
		Msg("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Err(ctx.Err()).
				Msg("outbox publisher stopped")
			return ctx.Err()

		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error().
					Err(err).
					Msg("failed to publish batch")
			}
		}
	}
}

// PublishBatch ships one batch of pending events in outbox order and returns
// how many were published. Events are published strictly in order: the batch
// stops at the first failure so a job's statuses never overtake each other.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.store.GetPendingEvents(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending records: %w", err)
	}

	if len(records) == 0 {
		p.logger.Debug().Msg("no pending events to publish")
		return 0, nil
	}

	var (
		published int
		marked    int
	)

	for _, record := range records {
		eventLogger := p.logger.With().
			Str("event_id", record.EventID).
			Str("event_type", record.EventType).
			Str("aggregate_id", record.AggregateID).
			Int64("outbox_id", record.ID).
			Logger()

		if err := p.broker.Publish(ctx, p.queue, record.Payload); err != nil {
			eventLogger.Error().
				Err(err).
				Msg("failed to publish event")
			break
		}
		published++

		if err := p.store.MarkEventProcessed(ctx, record.ID); err != nil {
			// событие опубликовано, но не помечено: уйдёт повторно, consumer идемпотентен
			eventLogger.Warn().
				Err(err).
				Msg("failed to mark event as processed")
			continue
		}
		marked++
	}

	p.logger.Info().
		Int("total", len(records)).
		Int("published", published).
		Int("marked", marked).
		Msg("batch processing completed")

	return published, nil
}
