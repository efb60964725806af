// Package manifest implements a VideoComposer that writes the broadcast edit
// list as JSON instead of rendering video. A downstream renderer consumes it.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type Clip struct {
	Kind      string  `json:"kind"`
	Segment   int     `json:"segment"`
	Path      string  `json:"path"`
	AudioPath string  `json:"audio_path,omitempty"`
	Seconds   float64 `json:"seconds,omitempty"`
	Caption   string  `json:"caption,omitempty"`
}

type Manifest struct {
	BroadcastID string    `json:"broadcast_id"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	Clips       []Clip    `json:"clips"`
}

type Composer struct {
	dir    string
	logger zerolog.Logger
	clock  func() time.Time
}

func NewComposer(dir string, logger zerolog.Logger) (*Composer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	return &Composer{
		dir:    dir,
		logger: logger.With().Str("component", "manifest_composer").Logger(),
		clock:  time.Now,
	}, nil
}

// Build lays out the edit list: broadcast intro, then per segment anchor
// intro, b-roll scenes over the voiceover and anchor outro, then the
// broadcast outro.
func Build(script *models.Script, assets *models.CompositionAssets, now time.Time) Manifest {
	m := Manifest{
		BroadcastID: assets.BroadcastID,
		Language:    script.Language,
		CreatedAt:   now,
	}

	anchor := func(video, audio string) string {
		if video != "" {
			return video
		}
		return audio
	}

	m.Clips = append(m.Clips, Clip{
		Kind:      "intro",
		Path:      anchor(assets.IntroAvatarPath, assets.IntroAudioPath),
		AudioPath: assets.IntroAudioPath,
	})

	numbers := make([]int, 0, len(assets.Segments))
	for n := range assets.Segments {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		seg := assets.Segments[n]
		var caption string
		var scenes []models.VisualScene
		if s, ok := script.Segment(n); ok {
			caption = s.LowerThird.Title
			scenes = s.VisualContent.Scenes
		}

		m.Clips = append(m.Clips, Clip{
			Kind:      "anchor_intro",
			Segment:   n,
			Path:      seg.AnchorIntroVideoPath,
			AudioPath: seg.AnchorIntroAudioPath,
			Caption:   caption,
		})
		for i, p := range seg.VisualPaths {
			clip := Clip{Kind: "broll", Segment: n, Path: p}
			if i == 0 {
				clip.AudioPath = seg.VoiceoverAudioPath
			}
			if i < len(scenes) {
				clip.Seconds = float64(scenes[i].DurationSeconds)
			}
			m.Clips = append(m.Clips, clip)
		}
		m.Clips = append(m.Clips, Clip{
			Kind:      "anchor_outro",
			Segment:   n,
			Path:      seg.AnchorOutroVideoPath,
			AudioPath: seg.AnchorOutroAudioPath,
		})
	}

	m.Clips = append(m.Clips, Clip{
		Kind:      "outro",
		Path:      anchor(assets.OutroAvatarPath, assets.OutroAudioPath),
		AudioPath: assets.OutroAudioPath,
	})
	return m
}

func (c *Composer) ComposeVideo(ctx context.Context, script *models.Script, assets *models.CompositionAssets) (string, error) {
	if script == nil || assets == nil {
		return "", fmt.Errorf("%w: script and assets are required", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m := Build(script, assets, c.clock().UTC())
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(c.dir, assets.BroadcastID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	c.logger.Info().
		Str("broadcast_id", assets.BroadcastID).
		Int("clips", len(m.Clips)).
		Str("path", path).
		Msg("manifest written")
	return path, nil
}
