package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
)

var ErrStageTimeout = errors.New("timed out waiting for stage result")

// QueueExecutor runs news and script in-process and delegates the other
// stages to workers through the broker, waiting for their StageResult.
type QueueExecutor struct {
	local       *LocalExecutor
	broker      broker.Broker
	results     *ResultDispatcher
	waitTimeout time.Duration
	idGen       func() uuid.UUID
	logger      zerolog.Logger
}

type QueueExecutorConfig struct {
	Local       *LocalExecutor
	Broker      broker.Broker
	Results     *ResultDispatcher
	WaitTimeout time.Duration
	Logger      zerolog.Logger
}

func NewQueueExecutor(cfg QueueExecutorConfig) (*QueueExecutor, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local executor is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result dispatcher is required")
	}
	if cfg.WaitTimeout <= 0 {
		return nil, fmt.Errorf("wait timeout must be positive, got: %v", cfg.WaitTimeout)
	}
	return &QueueExecutor{
		local:       cfg.Local,
		broker:      cfg.Broker,
		results:     cfg.Results,
		waitTimeout: cfg.WaitTimeout,
		idGen:       uuid.New,
		logger:      cfg.Logger.With().Str("component", "queue_executor").Logger(),
	}, nil
}

var _ Executor = (*QueueExecutor)(nil)

func (e *QueueExecutor) FetchArticles(ctx context.Context, job *models.Job) ([]models.Article, error) {
	return e.local.FetchArticles(ctx, job)
}

func (e *QueueExecutor) GenerateScript(ctx context.Context, job *models.Job, articles []models.Article) (*models.Script, error) {
	return e.local.GenerateScript(ctx, job, articles)
}

func (e *QueueExecutor) envelope(job *models.Job) models.Envelope {
	return models.Envelope{
		BroadcastID:   job.ID,
		CorrelationID: job.CorrelationID,
		TaskID:        e.idGen(),
		ReplyTo:       e.results.Queue(),
	}
}

// dispatch publishes msg and blocks until its result arrives.
func (e *QueueExecutor) dispatch(ctx context.Context, queue string, env models.Envelope, msg any) (models.StageResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return models.StageResult{}, fmt.Errorf("marshal %s message: %w", queue, err)
	}

	wait := e.results.Expect(env.TaskID)
	defer e.results.Forget(env.TaskID)

	if err := e.broker.Publish(ctx, queue, body); err != nil {
		return models.StageResult{}, fmt.Errorf("publish %s: %w", queue, err)
	}

	timer := time.NewTimer(e.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-wait:
		if res.Failed() {
			return res, errors.New(res.Error)
		}
		return res, nil
	case <-timer.C:
		return models.StageResult{}, fmt.Errorf("%w: %s task %s after %v", ErrStageTimeout, queue, env.TaskID, e.waitTimeout)
	case <-ctx.Done():
		return models.StageResult{}, ctx.Err()
	}
}

func (e *QueueExecutor) SynthesizeSpeech(ctx context.Context, job *models.Job, task SpeechTask) (ports.SpeechResult, error) {
	env := e.envelope(job)
	res, err := e.dispatch(ctx, models.QueueTtsGeneration, env, models.TtsGenerationMessage{
		Envelope:      env,
		SegmentNumber: task.SegmentNumber,
		SectionType:   task.Section,
		Text:          task.Text,
		Tone:          task.Tone,
	})
	if err != nil {
		return ports.SpeechResult{}, err
	}
	return ports.SpeechResult{AudioPath: res.Path, DurationSeconds: res.DurationSeconds, ContentHash: res.ContentHash}, nil
}

func (e *QueueExecutor) RenderAvatar(ctx context.Context, job *models.Job, task AvatarTask) (ports.AvatarResult, error) {
	env := e.envelope(job)
	res, err := e.dispatch(ctx, models.QueueAvatarGeneration, env, models.AvatarGenerationMessage{
		Envelope:      env,
		SegmentNumber: task.SegmentNumber,
		SectionType:   task.Section,
		AudioFilePath: task.AudioPath,
		Tone:          task.Tone,
	})
	if err != nil {
		return ports.AvatarResult{}, err
	}
	return ports.AvatarResult{VideoPath: res.Path, DurationSeconds: res.DurationSeconds}, nil
}

func (e *QueueExecutor) GenerateVisual(ctx context.Context, job *models.Job, task VisualTask) (ports.VisualResult, error) {
	env := e.envelope(job)
	res, err := e.dispatch(ctx, models.QueueBRollGeneration, env, models.BRollGenerationMessage{
		Envelope:        env,
		SegmentNumber:   task.SegmentNumber,
		SceneIndex:      task.SceneIndex,
		ContentType:     task.Scene.Type,
		Description:     task.Scene.Description,
		Prompt:          task.Scene.Prompt,
		SearchTerms:     task.Scene.SearchTerms,
		DurationSeconds: task.Scene.DurationSeconds,
	})
	if err != nil {
		return ports.VisualResult{}, err
	}
	return ports.VisualResult{
		Path:            res.Path,
		DurationSeconds: res.DurationSeconds,
		IsVideo:         res.IsVideo,
		Attribution:     res.Attribution,
	}, nil
}

// ComposeVideo delegates to the composition worker, which reads the asset
// records itself and writes the terminal job state.
func (e *QueueExecutor) ComposeVideo(ctx context.Context, job *models.Job, _ *models.Script, _ *models.CompositionAssets) (string, error) {
	env := e.envelope(job)
	res, err := e.dispatch(ctx, models.QueueVideoComposition, env, models.VideoCompositionMessage{Envelope: env})
	if err != nil {
		return "", err
	}
	return res.Path, nil
}
