package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

var (
	ErrJobTerminal    = errors.New("job is already terminal")
	ErrMissingScript  = errors.New("job has no script")
	ErrMissingAssets  = errors.New("assets missing")
	errNoComposedPath = errors.New("composer returned an empty path")
)

type compositionWorker struct {
	store    repository.JobStore
	composer ports.VideoComposer
	timeout  time.Duration
	clock    func() time.Time
}

// NewCompositionWorker builds the worker that assembles the final video from
// the persisted asset records and writes the job's terminal state itself.
func NewCompositionWorker(cfg Config, composer ports.VideoComposer) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if composer == nil {
		return nil, fmt.Errorf("video composer is required")
	}
	w := &compositionWorker{
		store:    cfg.Store,
		composer: composer,
		timeout:  cfg.Timeout,
		clock:    time.Now,
	}
	return newRunner("composition", models.QueueVideoComposition, 1, cfg, w.handle), nil
}

func (w *compositionWorker) handle(ctx context.Context, body []byte, log zerolog.Logger) (*models.StageResult, error) {
	msg, err := models.DecodeMessage[models.VideoCompositionMessage](body)
	if err != nil {
		return nil, err
	}
	res := resultFor(msg.Envelope, models.StageComposition)

	path, err := w.compose(ctx, msg, log)
	if err != nil {
		if !(ctx.Err() != nil && errors.Is(err, context.Canceled)) {
			w.markFailed(ctx, msg, err, log)
		}
		return res, err
	}
	res.Path = path
	return res, nil
}

func (w *compositionWorker) compose(ctx context.Context, msg models.VideoCompositionMessage, log zerolog.Logger) (string, error) {
	job, err := w.store.GetByID(ctx, msg.BroadcastID)
	if err != nil {
		return "", fmt.Errorf("load job: %w", err)
	}
	switch job.Status {
	case domain.Completed:
		// повторная доставка после успешной композиции
		log.Info().Str("output", job.OutputVideoPath).Msg("job already composed")
		return job.OutputVideoPath, nil
	case domain.Failed:
		return "", fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}
	if job.Script == nil || len(job.Script.Segments) == 0 {
		return "", ErrMissingScript
	}

	records, err := w.store.ListAssets(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("list assets: %w", err)
	}
	assets := models.BuildCompositionAssets(job.Script, records)
	if missing := assets.Missing(); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingAssets, strings.Join(missing, ", "))
	}

	callCtx, cancel := withTimeout(ctx, w.timeout)
	defer cancel()
	path, err := w.composer.ComposeVideo(callCtx, job.Script, assets)
	if err != nil {
		return "", fmt.Errorf("compose video: %w", err)
	}
	if path == "" {
		return "", errNoComposedPath
	}

	asset := models.NewComposedAsset(job.ID, path)
	if err := saveAsset(ctx, w.store, &asset); err != nil {
		return "", err
	}

	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer wcancel()
	_, err = repository.Mutate(wctx, w.store, job.ID, func(j *models.Job) error {
		if j.Status == domain.Completed {
			return repository.ErrUnchanged
		}
		return j.Complete(path, w.clock().UTC())
	})
	if err != nil {
		return "", fmt.Errorf("complete job: %w", err)
	}
	log.Info().Str("output", path).Msg("broadcast composed")
	return path, nil
}

// markFailed is best-effort; the orchestrator also fails the job on the
// failure result.
func (w *compositionWorker) markFailed(ctx context.Context, msg models.VideoCompositionMessage, cause error, log zerolog.Logger) {
	if errors.Is(cause, models.ErrNotFound) || errors.Is(cause, ErrJobTerminal) {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	reason := fmt.Sprintf("%s: %v", domain.Composing, cause)
	_, err := repository.Mutate(wctx, w.store, msg.BroadcastID, func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return repository.ErrUnchanged
		}
		return j.Fail(reason, w.clock().UTC())
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to mark job failed")
	}
}
