package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

const cancelledReason = "pipeline cancelled"

func (s *Service) run(ctx context.Context, job *models.Job) {
	log := s.logger.With().
		Str("broadcast_id", job.ID.String()).
		Str("correlation_id", job.CorrelationID.String()).
		Logger()

	err := s.execute(ctx, job, log)
	if err == nil {
		log.Info().Str("output", job.OutputVideoPath).Msg("broadcast completed")
		return
	}

	reason := err.Error()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		reason = cancelledReason
	}
	log.Error().Err(err).Str("status", job.Status.String()).Msg("broadcast failed")

	// запись терминального состояния не должна зависеть от отменённого ctx
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()
	if ferr := s.apply(fctx, job, func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return repository.ErrUnchanged
		}
		return j.Fail(reason, s.clock().UTC())
	}); ferr != nil {
		log.Error().Err(ferr).Msg("failed to record failure")
	}
}

func (s *Service) execute(ctx context.Context, job *models.Job, log zerolog.Logger) error {
	// FetchingNews
	if err := s.advance(ctx, job, domain.FetchingNews); err != nil {
		return err
	}
	articles, err := s.exec.FetchArticles(ctx, job)
	if err != nil {
		return stageErr(domain.FetchingNews, err)
	}
	log.Debug().Int("articles", len(articles)).Msg("articles fetched")

	// GeneratingScript
	if err := s.advance(ctx, job, domain.GeneratingScript); err != nil {
		return err
	}
	script, err := s.exec.GenerateScript(ctx, job, articles)
	if err != nil {
		return stageErr(domain.GeneratingScript, err)
	}
	if script == nil || len(script.Segments) == 0 {
		return stageErr(domain.GeneratingScript, ErrEmptyScript)
	}

	// скрипт сохраняется в той же записи, что и переход в GeneratingAudio
	err = s.apply(ctx, job, func(j *models.Job) error {
		now := s.clock().UTC()
		if err := j.AttachScript(script, now); err != nil {
			return err
		}
		return j.Advance(domain.GeneratingAudio, now)
	})
	if err != nil {
		return stageErr(domain.GeneratingScript, err)
	}
	log.Debug().Int("segments", len(script.Segments)).Msg("script attached")

	assets := newAssetsBuilder(job)

	if err := s.generateSpeech(ctx, job, assets); err != nil {
		return stageErr(domain.GeneratingAudio, err)
	}

	if err := s.advance(ctx, job, domain.GeneratingAvatars); err != nil {
		return err
	}
	if err := s.advance(ctx, job, domain.GeneratingBRoll); err != nil {
		return err
	}
	if err := s.generateAvatarsAndBRoll(ctx, job, assets); err != nil {
		return err
	}

	// Composing
	if err := s.advance(ctx, job, domain.Composing); err != nil {
		return err
	}
	path, err := s.exec.ComposeVideo(ctx, job, job.Script, assets.snapshot())
	if err != nil {
		return stageErr(domain.Composing, err)
	}

	err = s.apply(ctx, job, func(j *models.Job) error {
		if j.Status == domain.Completed {
			return repository.ErrUnchanged
		}
		return j.Complete(path, s.clock().UTC())
	})
	if err != nil {
		return stageErr(domain.Composing, err)
	}
	if job.Status != domain.Completed {
		// композиционный воркер успел записать Failed
		return stageErr(domain.Composing, fmt.Errorf("job ended as %s: %s", job.Status, job.ErrorMessage))
	}
	return nil
}

func (s *Service) advance(ctx context.Context, job *models.Job, to domain.Status) error {
	if err := ctx.Err(); err != nil {
		return stageErr(to, err)
	}
	err := s.apply(ctx, job, func(j *models.Job) error {
		return j.Advance(to, s.clock().UTC())
	})
	return stageErr(to, err)
}

// apply runs fn on the run's copy of the job and persists it. On a version
// conflict the job is re-read and fn is applied again.
func (s *Service) apply(ctx context.Context, job *models.Job, fn func(*models.Job) error) error {
	next := job.Clone()
	err := fn(next)
	switch {
	case errors.Is(err, repository.ErrUnchanged):
		return nil
	case err != nil:
		return err
	}

	err = s.store.Update(ctx, next)
	if err == nil {
		*job = *next
		return nil
	}
	if !errors.Is(err, models.ErrConflict) && !errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("persist job: %w", err)
	}

	fresh, err := repository.Mutate(ctx, s.store, job.ID, fn)
	if err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	*job = *fresh
	return nil
}

func (s *Service) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxParallelCalls > 0 {
		g.SetLimit(s.cfg.MaxParallelCalls)
	}
	return g, gctx
}

func speechTasks(script *models.Script) []SpeechTask {
	tasks := make([]SpeechTask, 0, 2+3*len(script.Segments))
	tasks = append(tasks,
		SpeechTask{SegmentNumber: models.BroadcastSegment, Section: models.SectionIntro, Text: script.Intro.AnchorText, Tone: script.Intro.Tone},
		SpeechTask{SegmentNumber: models.BroadcastSegment, Section: models.SectionOutro, Text: script.Outro.AnchorText, Tone: script.Outro.Tone},
	)
	for _, seg := range script.Segments {
		tasks = append(tasks,
			SpeechTask{SegmentNumber: seg.SegmentNumber, Section: models.SectionIntro, Text: seg.AnchorIntro.Text, Tone: seg.AnchorIntro.Tone},
			SpeechTask{SegmentNumber: seg.SegmentNumber, Section: models.SectionVoiceover, Text: seg.Voiceover.Text, Tone: seg.Voiceover.Tone},
			SpeechTask{SegmentNumber: seg.SegmentNumber, Section: models.SectionOutro, Text: seg.AnchorOutro.Text, Tone: seg.AnchorOutro.Tone},
		)
	}
	return tasks
}

func (s *Service) generateSpeech(ctx context.Context, job *models.Job, assets *assetsBuilder) error {
	g, gctx := s.group(ctx)
	for _, task := range speechTasks(job.Script) {
		g.Go(func() error {
			res, err := s.exec.SynthesizeSpeech(gctx, job, task)
			if err != nil {
				return fmt.Errorf("speech segment %d %s: %w", task.SegmentNumber, task.Section, err)
			}
			assets.setSpeech(task.SegmentNumber, task.Section, res.AudioPath)
			return nil
		})
	}
	return g.Wait()
}

// generateAvatarsAndBRoll runs both stages as one group: a failure in either
// cancels the other.
func (s *Service) generateAvatarsAndBRoll(ctx context.Context, job *models.Job, assets *assetsBuilder) error {
	g, gctx := s.group(ctx)

	for _, seg := range job.Script.Segments {
		avatars := []AvatarTask{
			{SegmentNumber: seg.SegmentNumber, Section: models.SectionIntro, AudioPath: assets.speechPath(seg.SegmentNumber, models.SectionIntro), Tone: seg.AnchorIntro.Tone},
			{SegmentNumber: seg.SegmentNumber, Section: models.SectionOutro, AudioPath: assets.speechPath(seg.SegmentNumber, models.SectionOutro), Tone: seg.AnchorOutro.Tone},
		}
		for _, task := range avatars {
			g.Go(func() error {
				res, err := s.exec.RenderAvatar(gctx, job, task)
				if err != nil {
					return stageErr(domain.GeneratingAvatars, fmt.Errorf("avatar segment %d %s: %w", task.SegmentNumber, task.Section, err))
				}
				assets.setAvatar(task.SegmentNumber, task.Section, res.VideoPath)
				return nil
			})
		}

		for i, scene := range seg.VisualContent.Scenes {
			task := VisualTask{SegmentNumber: seg.SegmentNumber, SceneIndex: i, Scene: scene}
			g.Go(func() error {
				res, err := s.exec.GenerateVisual(gctx, job, task)
				if err != nil {
					return stageErr(domain.GeneratingBRoll, fmt.Errorf("visual segment %d scene %d: %w", task.SegmentNumber, task.SceneIndex, err))
				}
				assets.setVisual(task.SegmentNumber, task.SceneIndex, res.Path)
				return nil
			})
		}
	}
	return g.Wait()
}
