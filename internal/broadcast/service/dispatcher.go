package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

// ResultDispatcher consumes one results queue and hands every result to
// the goroutine waiting on its task id.
type ResultDispatcher struct {
	broker   broker.Broker
	queue    string
	prefetch int
	logger   zerolog.Logger

	mu      sync.Mutex
	waiters map[uuid.UUID]chan models.StageResult
}

// NewResultDispatcher consumes models.ResultQueueFor(instance). Orchestrators
// running side by side need distinct instances, otherwise they take each
// other's results.
func NewResultDispatcher(b broker.Broker, instance string, prefetch int, logger zerolog.Logger) *ResultDispatcher {
	if prefetch <= 0 {
		prefetch = 16
	}
	queue := models.ResultQueueFor(instance)
	return &ResultDispatcher{
		broker:   b,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger.With().Str("component", "result_dispatcher").Str("queue", queue).Logger(),
		waiters:  make(map[uuid.UUID]chan models.StageResult),
	}
}

// Expect registers interest in taskID. It must be called before the task is
// published so a fast result is not lost.
func (d *ResultDispatcher) Expect(taskID uuid.UUID) <-chan models.StageResult {
	ch := make(chan models.StageResult, 1)
	d.mu.Lock()
	d.waiters[taskID] = ch
	d.mu.Unlock()
	return ch
}

// Queue is the results queue workers reply to.
func (d *ResultDispatcher) Queue() string { return d.queue }

func (d *ResultDispatcher) Forget(taskID uuid.UUID) {
	d.mu.Lock()
	delete(d.waiters, taskID)
	d.mu.Unlock()
}

func (d *ResultDispatcher) deliver(res models.StageResult) bool {
	d.mu.Lock()
	ch, ok := d.waiters[res.TaskID]
	if ok {
		delete(d.waiters, res.TaskID)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// Run consumes results until ctx is cancelled or the subscription is lost.
func (d *ResultDispatcher) Run(ctx context.Context) error {
	sub, err := d.broker.Subscribe(ctx, d.queue, d.prefetch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", d.queue, err)
	}
	defer sub.Close()

	d.logger.Info().Msg("result dispatcher started")
	for {
		delivery, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info().Msg("result dispatcher stopped")
				return nil
			}
			return fmt.Errorf("next result: %w", err)
		}

		var res models.StageResult
		if err := json.Unmarshal(delivery.Body, &res); err != nil || res.TaskID == uuid.Nil {
			d.logger.Warn().Err(err).Msg("dropping undecodable stage result")
			_ = delivery.Ack()
			continue
		}

		if !d.deliver(res) {
			// ожидающего нет: оркестратор перезапущен или задача уже по таймауту
			d.logger.Debug().
				Str("task_id", res.TaskID.String()).
				Str("broadcast_id", res.BroadcastID.String()).
				Str("stage", string(res.Stage)).
				Msg("no waiter for stage result")
		}
		if err := delivery.Ack(); err != nil && !errors.Is(err, broker.ErrAlreadySettled) {
			d.logger.Warn().Err(err).Msg("failed to ack stage result")
		}
	}
}
