package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

type SpeechTask struct {
	SegmentNumber int
	Section       models.SectionType
	Text          string
	Tone          string
}

type AvatarTask struct {
	SegmentNumber int
	Section       models.SectionType
	AudioPath     string
	Tone          string
}

type VisualTask struct {
	SegmentNumber int
	SceneIndex    int
	Scene         models.VisualScene
}

// Executor runs single stage calls for a job. The orchestrator owns fan-out,
// ordering and state; an Executor only decides where a call runs.
type Executor interface {
	FetchArticles(ctx context.Context, job *models.Job) ([]models.Article, error)
	GenerateScript(ctx context.Context, job *models.Job, articles []models.Article) (*models.Script, error)
	SynthesizeSpeech(ctx context.Context, job *models.Job, task SpeechTask) (ports.SpeechResult, error)
	RenderAvatar(ctx context.Context, job *models.Job, task AvatarTask) (ports.AvatarResult, error)
	GenerateVisual(ctx context.Context, job *models.Job, task VisualTask) (ports.VisualResult, error)
	ComposeVideo(ctx context.Context, job *models.Job, script *models.Script, assets *models.CompositionAssets) (string, error)
}

// Timeouts bounds each capability call.
type Timeouts struct {
	News    time.Duration
	Script  time.Duration
	Speech  time.Duration
	Avatar  time.Duration
	Visual  time.Duration
	Compose time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		News:    30 * time.Second,
		Script:  60 * time.Second,
		Speech:  30 * time.Second,
		Avatar:  45 * time.Second,
		Visual:  30 * time.Second,
		Compose: 60 * time.Second,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// LocalExecutor calls the capability ports in-process. When Assets is set,
// every generated artifact is also recorded there.
type LocalExecutor struct {
	ports    ports.Set
	timeouts Timeouts
	assets   repository.JobStore
	logger   zerolog.Logger
}

type LocalExecutorConfig struct {
	Ports    ports.Set
	Timeouts Timeouts
	Assets   repository.JobStore
	Logger   zerolog.Logger
}

func NewLocalExecutor(cfg LocalExecutorConfig) (*LocalExecutor, error) {
	p := cfg.Ports
	switch {
	case p.News == nil:
		return nil, fmt.Errorf("news source is required")
	case p.Script == nil:
		return nil, fmt.Errorf("script generator is required")
	case p.Speech == nil:
		return nil, fmt.Errorf("speech synthesizer is required")
	case p.Avatar == nil:
		return nil, fmt.Errorf("avatar renderer is required")
	case p.Visual == nil:
		return nil, fmt.Errorf("visual content provider is required")
	case p.Composer == nil:
		return nil, fmt.Errorf("video composer is required")
	}
	return &LocalExecutor{
		ports:    p,
		timeouts: cfg.Timeouts,
		assets:   cfg.Assets,
		logger:   cfg.Logger.With().Str("component", "local_executor").Logger(),
	}, nil
}

var _ Executor = (*LocalExecutor)(nil)

func (e *LocalExecutor) FetchArticles(ctx context.Context, job *models.Job) ([]models.Article, error) {
	ctx, cancel := withTimeout(ctx, e.timeouts.News)
	defer cancel()
	req := job.Request
	return e.ports.News.FetchArticles(ctx, req.TimePeriodHours, req.Categories, req.MaxArticles)
}

func (e *LocalExecutor) GenerateScript(ctx context.Context, job *models.Job, articles []models.Article) (*models.Script, error) {
	ctx, cancel := withTimeout(ctx, e.timeouts.Script)
	defer cancel()
	return e.ports.Script.GenerateScript(ctx, articles)
}

func (e *LocalExecutor) SynthesizeSpeech(ctx context.Context, job *models.Job, task SpeechTask) (ports.SpeechResult, error) {
	callCtx, cancel := withTimeout(ctx, e.timeouts.Speech)
	defer cancel()
	res, err := e.ports.Speech.SynthesizeSpeech(callCtx, task.Text, task.Tone)
	if err != nil {
		return ports.SpeechResult{}, err
	}
	e.record(ctx, models.NewSpeechAsset(job.ID, task.SegmentNumber, task.Section, res.AudioPath, res.DurationSeconds, res.ContentHash))
	return res, nil
}

func (e *LocalExecutor) RenderAvatar(ctx context.Context, job *models.Job, task AvatarTask) (ports.AvatarResult, error) {
	callCtx, cancel := withTimeout(ctx, e.timeouts.Avatar)
	defer cancel()
	res, err := e.ports.Avatar.RenderAvatar(callCtx, task.AudioPath, task.Tone)
	if err != nil {
		return ports.AvatarResult{}, err
	}
	e.record(ctx, models.NewAvatarAsset(job.ID, task.SegmentNumber, task.Section, res.VideoPath, res.DurationSeconds))
	return res, nil
}

func (e *LocalExecutor) GenerateVisual(ctx context.Context, job *models.Job, task VisualTask) (ports.VisualResult, error) {
	callCtx, cancel := withTimeout(ctx, e.timeouts.Visual)
	defer cancel()
	res, err := e.ports.Visual.GenerateVisual(callCtx, visualRequest(task.Scene))
	if err != nil {
		return ports.VisualResult{}, err
	}
	e.record(ctx, models.NewVisualAsset(job.ID, task.SegmentNumber, task.SceneIndex, res.Path, res.DurationSeconds, res.IsVideo))
	return res, nil
}

func (e *LocalExecutor) ComposeVideo(ctx context.Context, job *models.Job, script *models.Script, assets *models.CompositionAssets) (string, error) {
	callCtx, cancel := withTimeout(ctx, e.timeouts.Compose)
	defer cancel()
	path, err := e.ports.Composer.ComposeVideo(callCtx, script, assets)
	if err != nil {
		return "", err
	}
	e.record(ctx, models.NewComposedAsset(job.ID, path))
	return path, nil
}

// record is best-effort: the in-memory assets builder is authoritative for a
// local run.
func (e *LocalExecutor) record(ctx context.Context, asset models.GeneratedAsset) {
	if e.assets == nil {
		return
	}
	if err := e.assets.SaveAsset(ctx, &asset); err != nil {
		e.logger.Warn().
			Err(err).
			Str("broadcast_id", asset.BroadcastID.String()).
			Str("asset_type", string(asset.Type)).
			Msg("failed to record asset")
	}
}

func visualRequest(scene models.VisualScene) ports.VisualRequest {
	return ports.VisualRequest{
		ContentType: scene.Type,
		Description: scene.Description,
		Prompt:      scene.Prompt,
		SearchTerms: append([]string(nil), scene.SearchTerms...),
	}
}
