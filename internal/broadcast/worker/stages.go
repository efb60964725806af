package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

func NewSpeechWorker(cfg Config, speech ports.SpeechSynthesizer) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if speech == nil {
		return nil, fmt.Errorf("speech synthesizer is required")
	}
	handle := func(ctx context.Context, body []byte, log zerolog.Logger) (*models.StageResult, error) {
		msg, err := models.DecodeMessage[models.TtsGenerationMessage](body)
		if err != nil {
			return nil, err
		}
		res := resultFor(msg.Envelope, models.StageSpeech)
		res.Section = msg.SectionType
		res.SegmentNumber = msg.SegmentNumber

		callCtx, cancel := withTimeout(ctx, cfg.Timeout)
		defer cancel()
		out, err := speech.SynthesizeSpeech(callCtx, msg.Text, msg.Tone)
		if err != nil {
			return res, fmt.Errorf("synthesize segment %d %s: %w", msg.SegmentNumber, msg.SectionType, err)
		}

		asset := models.NewSpeechAsset(msg.BroadcastID, msg.SegmentNumber, msg.SectionType, out.AudioPath, out.DurationSeconds, out.ContentHash)
		if err := saveAsset(ctx, cfg.Store, &asset); err != nil {
			return res, err
		}
		res.Path = out.AudioPath
		res.DurationSeconds = out.DurationSeconds
		res.ContentHash = out.ContentHash
		return res, nil
	}
	return newRunner("speech", models.QueueTtsGeneration, 1, cfg, handle), nil
}

func NewAvatarWorker(cfg Config, avatar ports.AvatarRenderer) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if avatar == nil {
		return nil, fmt.Errorf("avatar renderer is required")
	}
	handle := func(ctx context.Context, body []byte, log zerolog.Logger) (*models.StageResult, error) {
		msg, err := models.DecodeMessage[models.AvatarGenerationMessage](body)
		if err != nil {
			return nil, err
		}
		res := resultFor(msg.Envelope, models.StageAvatar)
		res.Section = msg.SectionType
		res.SegmentNumber = msg.SegmentNumber

		callCtx, cancel := withTimeout(ctx, cfg.Timeout)
		defer cancel()
		out, err := avatar.RenderAvatar(callCtx, msg.AudioFilePath, msg.Tone)
		if err != nil {
			return res, fmt.Errorf("render avatar segment %d %s: %w", msg.SegmentNumber, msg.SectionType, err)
		}

		asset := models.NewAvatarAsset(msg.BroadcastID, msg.SegmentNumber, msg.SectionType, out.VideoPath, out.DurationSeconds)
		if err := saveAsset(ctx, cfg.Store, &asset); err != nil {
			return res, err
		}
		res.Path = out.VideoPath
		res.DurationSeconds = out.DurationSeconds
		return res, nil
	}
	return newRunner("avatar", models.QueueAvatarGeneration, 1, cfg, handle), nil
}

func NewVisualWorker(cfg Config, visual ports.VisualContentProvider) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if visual == nil {
		return nil, fmt.Errorf("visual content provider is required")
	}
	handle := func(ctx context.Context, body []byte, log zerolog.Logger) (*models.StageResult, error) {
		msg, err := models.DecodeMessage[models.BRollGenerationMessage](body)
		if err != nil {
			return nil, err
		}
		res := resultFor(msg.Envelope, models.StageVisual)
		res.Section = models.SectionVoiceover
		res.SegmentNumber = msg.SegmentNumber
		res.SceneIndex = msg.SceneIndex

		callCtx, cancel := withTimeout(ctx, cfg.Timeout)
		defer cancel()
		out, err := visual.GenerateVisual(callCtx, ports.VisualRequest{
			ContentType: msg.ContentType,
			Description: msg.Description,
			Prompt:      msg.Prompt,
			SearchTerms: msg.SearchTerms,
		})
		if err != nil {
			return res, fmt.Errorf("visual segment %d scene %d: %w", msg.SegmentNumber, msg.SceneIndex, err)
		}

		asset := models.NewVisualAsset(msg.BroadcastID, msg.SegmentNumber, msg.SceneIndex, out.Path, out.DurationSeconds, out.IsVideo)
		if err := saveAsset(ctx, cfg.Store, &asset); err != nil {
			return res, err
		}
		res.Path = out.Path
		res.DurationSeconds = out.DurationSeconds
		res.IsVideo = out.IsVideo
		res.Attribution = out.Attribution
		return res, nil
	}
	return newRunner("visual", models.QueueBRollGeneration, 2, cfg, handle), nil
}

// saveAsset upserts by natural key, so a replayed task overwrites its earlier record.
func saveAsset(ctx context.Context, store repository.JobStore, asset *models.GeneratedAsset) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := store.SaveAsset(sctx, asset); err != nil {
		return fmt.Errorf("save %s asset: %w", asset.Type, err)
	}
	return nil
}
