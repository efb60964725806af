// Package worker hosts the queue consumers that execute delegated pipeline
// stages: speech, avatar, visual and composition.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

const settleTimeout = 5 * time.Second

// handleFunc performs one task. A non-nil result is published to the
// stage-results queue, for failures as well as successes. A nil result with
// an error marks the message itself as invalid.
type handleFunc func(ctx context.Context, body []byte, log zerolog.Logger) (*models.StageResult, error)

// Config is shared by every stage worker.
type Config struct {
	Broker   broker.Broker
	Store    repository.JobStore
	Prefetch int
	// Timeout bounds a single capability call.
	Timeout time.Duration
	Logger  zerolog.Logger
}

func (c Config) validate() error {
	if c.Broker == nil {
		return fmt.Errorf("broker is required")
	}
	if c.Store == nil {
		return fmt.Errorf("job store is required")
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch cannot be negative, got: %d", c.Prefetch)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got: %v", c.Timeout)
	}
	return nil
}

// Runner consumes one queue and runs at most prefetch tasks at a time.
type Runner struct {
	name     string
	queue    string
	prefetch int
	broker   broker.Broker
	handle   handleFunc
	logger   zerolog.Logger
}

func newRunner(name, queue string, defaultPrefetch int, cfg Config, handle handleFunc) *Runner {
	prefetch := cfg.Prefetch
	if prefetch == 0 {
		prefetch = defaultPrefetch
	}
	return &Runner{
		name:     name,
		queue:    queue,
		prefetch: prefetch,
		broker:   cfg.Broker,
		handle:   handle,
		logger: cfg.Logger.With().
			Str("component", name+"_worker").
			Str("queue", queue).
			Logger(),
	}
}

func (r *Runner) Name() string  { return r.name }
func (r *Runner) Queue() string { return r.queue }

// Run blocks until ctx is cancelled, in which case it returns nil after the
// in-flight tasks have settled. Losing the subscription returns the error so
// the host can restart the worker.
func (r *Runner) Run(ctx context.Context) error {
	sub, err := r.broker.Subscribe(ctx, r.queue, r.prefetch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.queue, err)
	}
	defer sub.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, r.prefetch)

	r.logger.Info().Int("prefetch", r.prefetch).Msg("worker started")

	for {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			r.logger.Info().Msg("worker stopped")
			return nil
		}

		delivery, err := sub.Next(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				r.logger.Info().Msg("worker stopped")
				return nil
			}
			return fmt.Errorf("next %s: %w", r.queue, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.process(ctx, delivery)
		}()
	}
}

func (r *Runner) process(ctx context.Context, d *broker.Delivery) {
	log := r.logger.With().Bool("redelivered", d.Redelivered).Logger()

	res, err := r.handle(ctx, d.Body, log)
	if res != nil {
		log = log.With().
			Str("broadcast_id", res.BroadcastID.String()).
			Str("correlation_id", res.CorrelationID.String()).
			Str("task_id", res.TaskID.String()).
			Logger()
	}

	switch {
	case err == nil:
		if perr := r.publishResult(ctx, res); perr != nil {
			// результат не доставлен: задача повторится, запись ассета идемпотентна
			log.Error().Err(perr).Msg("failed to publish stage result")
			r.settle(log, d.Nack(true))
			return
		}
		log.Debug().Msg("task completed")
		r.settle(log, d.Ack())

	case res == nil:
		// сообщение не декодировано: повтор ничего не изменит
		log.Warn().Err(err).Msg("dropping invalid message")
		r.settle(log, d.Ack())

	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		log.Info().Msg("task interrupted by shutdown, requeueing")
		r.settle(log, d.Nack(true))

	default:
		log.Error().Err(err).Msg("task failed")
		res.Error = err.Error()
		if perr := r.publishResult(ctx, res); perr != nil {
			log.Error().Err(perr).Msg("failed to publish failure result")
		}
		r.settle(log, d.Nack(false))
	}
}

func (r *Runner) publishResult(ctx context.Context, res *models.StageResult) error {
	if res == nil {
		return nil
	}
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal stage result: %w", err)
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return r.broker.Publish(pctx, res.ResultQueue(), body)
}

func (r *Runner) settle(log zerolog.Logger, err error) {
	if err != nil && !errors.Is(err, broker.ErrAlreadySettled) {
		log.Warn().Err(err).Msg("failed to settle delivery")
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func resultFor(env models.Envelope, stage models.Stage) *models.StageResult {
	return &models.StageResult{Envelope: env, Stage: stage}
}
