package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type SectionType string

const (
	SectionIntro     SectionType = "intro"
	SectionVoiceover SectionType = "voiceover"
	SectionOutro     SectionType = "outro"
)

type AssetType string

const (
	AssetTtsAudio      AssetType = "TtsAudio"
	AssetAvatarVideo   AssetType = "AvatarVideo"
	AssetVisualImage   AssetType = "VisualImage"
	AssetVisualVideo   AssetType = "VisualVideo"
	AssetComposedVideo AssetType = "ComposedVideo"
)

// BroadcastSegment is the segment number used for broadcast-level intro/outro assets.
const BroadcastSegment = 0

// CompositionAssets is everything the composer needs besides the script.
type CompositionAssets struct {
	BroadcastID     string                `json:"broadcast_id"`
	IntroAudioPath  string                `json:"intro_audio_path,omitempty"`
	OutroAudioPath  string                `json:"outro_audio_path,omitempty"`
	IntroAvatarPath string                `json:"intro_avatar_path,omitempty"`
	OutroAvatarPath string                `json:"outro_avatar_path,omitempty"`
	Segments        map[int]SegmentAssets `json:"segments"`
}

type SegmentAssets struct {
	SegmentNumber        int      `json:"segment_number"`
	AnchorIntroAudioPath string   `json:"anchor_intro_audio_path,omitempty"`
	AnchorIntroVideoPath string   `json:"anchor_intro_video_path,omitempty"`
	VoiceoverAudioPath   string   `json:"voiceover_audio_path,omitempty"`
	VisualPaths          []string `json:"visual_paths"`
	AnchorOutroAudioPath string   `json:"anchor_outro_audio_path,omitempty"`
	AnchorOutroVideoPath string   `json:"anchor_outro_video_path,omitempty"`
}

// NewCompositionAssets seeds one SegmentAssets per script segment, with a
// visual slot per planned scene.
func NewCompositionAssets(broadcastID string, script *Script) *CompositionAssets {
	a := &CompositionAssets{
		BroadcastID: broadcastID,
		Segments:    make(map[int]SegmentAssets),
	}
	if script == nil {
		return a
	}
	for _, seg := range script.Segments {
		a.Segments[seg.SegmentNumber] = SegmentAssets{
			SegmentNumber: seg.SegmentNumber,
			VisualPaths:   make([]string, len(seg.VisualContent.Scenes)),
		}
	}
	return a
}

// GeneratedAsset is the persisted record of one generated artifact.
type GeneratedAsset struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	BroadcastID     uuid.UUID   `db:"broadcast_id" json:"broadcast_id"`
	SegmentNumber   int         `db:"segment_number" json:"segment_number"`
	Section         SectionType `db:"section" json:"section"`
	SceneIndex      int         `db:"scene_index" json:"scene_index"`
	Type            AssetType   `db:"asset_type" json:"asset_type"`
	FilePath        string      `db:"file_path" json:"file_path"`
	DurationSeconds float64     `db:"duration_seconds" json:"duration_seconds"`
	ContentHash     string      `db:"content_hash" json:"content_hash"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// AssetKey is the natural key of a GeneratedAsset; saving the same key twice overwrites.
type AssetKey struct {
	BroadcastID   uuid.UUID
	SegmentNumber int
	Section       SectionType
	SceneIndex    int
	Type          AssetType
}

func (a GeneratedAsset) Key() AssetKey {
	return AssetKey{
		BroadcastID:   a.BroadcastID,
		SegmentNumber: a.SegmentNumber,
		Section:       a.Section,
		SceneIndex:    a.SceneIndex,
		Type:          a.Type,
	}
}

// BuildCompositionAssets reconstructs the asset bundle from persisted records.
// Records for segments the script does not know about are ignored.
func BuildCompositionAssets(script *Script, records []GeneratedAsset) *CompositionAssets {
	assets := NewCompositionAssets(script.BroadcastID, script)

	sorted := append([]GeneratedAsset(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, r := range sorted {
		if r.SegmentNumber == BroadcastSegment {
			switch {
			case r.Type == AssetTtsAudio && r.Section == SectionIntro:
				assets.IntroAudioPath = r.FilePath
			case r.Type == AssetTtsAudio && r.Section == SectionOutro:
				assets.OutroAudioPath = r.FilePath
			case r.Type == AssetAvatarVideo && r.Section == SectionIntro:
				assets.IntroAvatarPath = r.FilePath
			case r.Type == AssetAvatarVideo && r.Section == SectionOutro:
				assets.OutroAvatarPath = r.FilePath
			}
			continue
		}

		seg, ok := assets.Segments[r.SegmentNumber]
		if !ok {
			continue
		}
		switch r.Type {
		case AssetTtsAudio:
			switch r.Section {
			case SectionIntro:
				seg.AnchorIntroAudioPath = r.FilePath
			case SectionVoiceover:
				seg.VoiceoverAudioPath = r.FilePath
			case SectionOutro:
				seg.AnchorOutroAudioPath = r.FilePath
			}
		case AssetAvatarVideo:
			switch r.Section {
			case SectionIntro:
				seg.AnchorIntroVideoPath = r.FilePath
			case SectionOutro:
				seg.AnchorOutroVideoPath = r.FilePath
			}
		case AssetVisualImage, AssetVisualVideo:
			if r.SceneIndex >= 0 && r.SceneIndex < len(seg.VisualPaths) {
				seg.VisualPaths[r.SceneIndex] = r.FilePath
			}
		}
		assets.Segments[r.SegmentNumber] = seg
	}
	return assets
}

// Missing lists human-readable descriptions of empty asset slots that the
// composer requires. Broadcast-level avatars are optional.
func (a *CompositionAssets) Missing() []string {
	var out []string
	if a.IntroAudioPath == "" {
		out = append(out, "intro audio")
	}
	if a.OutroAudioPath == "" {
		out = append(out, "outro audio")
	}
	numbers := make([]int, 0, len(a.Segments))
	for n := range a.Segments {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		seg := a.Segments[n]
		check := func(path, what string) {
			if path == "" {
				out = append(out, fmt.Sprintf("segment %d %s", n, what))
			}
		}
		check(seg.AnchorIntroAudioPath, "anchor intro audio")
		check(seg.VoiceoverAudioPath, "voiceover audio")
		check(seg.AnchorOutroAudioPath, "anchor outro audio")
		check(seg.AnchorIntroVideoPath, "anchor intro video")
		check(seg.AnchorOutroVideoPath, "anchor outro video")
		for i, p := range seg.VisualPaths {
			if p == "" {
				out = append(out, fmt.Sprintf("segment %d visual scene %d", n, i))
			}
		}
	}
	return out
}

// NewSpeechAsset, NewAvatarAsset and NewVisualAsset build the records the
// executors and workers persist after a successful capability call.
func NewSpeechAsset(broadcastID uuid.UUID, segment int, section SectionType, path string, seconds float64, hash string) GeneratedAsset {
	return GeneratedAsset{
		BroadcastID:     broadcastID,
		SegmentNumber:   segment,
		Section:         section,
		Type:            AssetTtsAudio,
		FilePath:        path,
		DurationSeconds: seconds,
		ContentHash:     hash,
	}
}

func NewAvatarAsset(broadcastID uuid.UUID, segment int, section SectionType, path string, seconds float64) GeneratedAsset {
	return GeneratedAsset{
		BroadcastID:     broadcastID,
		SegmentNumber:   segment,
		Section:         section,
		Type:            AssetAvatarVideo,
		FilePath:        path,
		DurationSeconds: seconds,
	}
}

func NewVisualAsset(broadcastID uuid.UUID, segment, scene int, path string, seconds float64, isVideo bool) GeneratedAsset {
	typ := AssetVisualImage
	if isVideo {
		typ = AssetVisualVideo
	}
	return GeneratedAsset{
		BroadcastID:     broadcastID,
		SegmentNumber:   segment,
		Section:         SectionVoiceover,
		SceneIndex:      scene,
		Type:            typ,
		FilePath:        path,
		DurationSeconds: seconds,
	}
}

func NewComposedAsset(broadcastID uuid.UUID, path string) GeneratedAsset {
	return GeneratedAsset{
		BroadcastID: broadcastID,
		Section:     SectionOutro,
		Type:        AssetComposedVideo,
		FilePath:    path,
	}
}
