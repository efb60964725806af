// Package ports declares the content-generation capabilities the pipeline
// depends on. Implementations live under internal/providers.
package ports

import (
	"context"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type NewsSource interface {
	FetchArticles(ctx context.Context, hours int, categories []models.Category, max int) ([]models.Article, error)
}

type ScriptGenerator interface {
	GenerateScript(ctx context.Context, articles []models.Article) (*models.Script, error)
}

type SpeechResult struct {
	AudioPath       string
	DurationSeconds float64
	ContentHash     string
}

type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, tone string) (SpeechResult, error)
}

type AvatarResult struct {
	VideoPath       string
	DurationSeconds float64
}

type AvatarRenderer interface {
	RenderAvatar(ctx context.Context, audioPath, tone string) (AvatarResult, error)
}

type VisualRequest struct {
	ContentType models.VisualContentType
	Description string
	Prompt      string
	SearchTerms []string
}

type VisualResult struct {
	Path            string
	DurationSeconds float64
	IsVideo         bool
	Attribution     string
}

type VisualContentProvider interface {
	GenerateVisual(ctx context.Context, req VisualRequest) (VisualResult, error)
}

// VideoComposer assembles the final broadcast and returns the output path.
type VideoComposer interface {
	ComposeVideo(ctx context.Context, script *models.Script, assets *models.CompositionAssets) (string, error)
}

// Set bundles one implementation of every capability.
type Set struct {
	News     NewsSource
	Script   ScriptGenerator
	Speech   SpeechSynthesizer
	Avatar   AvatarRenderer
	Visual   VisualContentProvider
	Composer VideoComposer
}
