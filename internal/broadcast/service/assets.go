package service

import (
	"sync"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

// assetsBuilder collects stage outputs from concurrent sub-tasks.
type assetsBuilder struct {
	mu     sync.Mutex
	assets *models.CompositionAssets
}

func newAssetsBuilder(job *models.Job) *assetsBuilder {
	return &assetsBuilder{assets: models.NewCompositionAssets(job.ID.String(), job.Script)}
}

func (b *assetsBuilder) setSpeech(segment int, section models.SectionType, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if segment == models.BroadcastSegment {
		switch section {
		case models.SectionIntro:
			b.assets.IntroAudioPath = path
		case models.SectionOutro:
			b.assets.OutroAudioPath = path
		}
		return
	}
	seg := b.assets.Segments[segment]
	seg.SegmentNumber = segment
	switch section {
	case models.SectionIntro:
		seg.AnchorIntroAudioPath = path
	case models.SectionVoiceover:
		seg.VoiceoverAudioPath = path
	case models.SectionOutro:
		seg.AnchorOutroAudioPath = path
	}
	b.assets.Segments[segment] = seg
}

func (b *assetsBuilder) setAvatar(segment int, section models.SectionType, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if segment == models.BroadcastSegment {
		switch section {
		case models.SectionIntro:
			b.assets.IntroAvatarPath = path
		case models.SectionOutro:
			b.assets.OutroAvatarPath = path
		}
		return
	}
	seg := b.assets.Segments[segment]
	seg.SegmentNumber = segment
	switch section {
	case models.SectionIntro:
		seg.AnchorIntroVideoPath = path
	case models.SectionOutro:
		seg.AnchorOutroVideoPath = path
	}
	b.assets.Segments[segment] = seg
}

func (b *assetsBuilder) setVisual(segment, scene int, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seg := b.assets.Segments[segment]
	seg.SegmentNumber = segment
	if scene >= len(seg.VisualPaths) {
		grown := make([]string, scene+1)
		copy(grown, seg.VisualPaths)
		seg.VisualPaths = grown
	}
	seg.VisualPaths[scene] = path
	b.assets.Segments[segment] = seg
}

func (b *assetsBuilder) speechPath(segment int, section models.SectionType) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seg := b.assets.Segments[segment]
	switch section {
	case models.SectionIntro:
		return seg.AnchorIntroAudioPath
	case models.SectionOutro:
		return seg.AnchorOutroAudioPath
	default:
		return seg.VoiceoverAudioPath
	}
}

// snapshot returns a deep copy safe to hand to the composer.
func (b *assetsBuilder) snapshot() *models.CompositionAssets {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *b.assets
	cp.Segments = make(map[int]models.SegmentAssets, len(b.assets.Segments))
	for n, seg := range b.assets.Segments {
		seg.VisualPaths = append([]string(nil), seg.VisualPaths...)
		cp.Segments[n] = seg
	}
	return &cp
}
