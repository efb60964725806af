package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

func testScript() *models.Script {
	return &models.Script{
		BroadcastID: "b-1",
		Language:    "sv",
		Segments: []models.Segment{
			{
				SegmentNumber: 2,
				LowerThird:    models.LowerThird{Title: "ANDRA"},
				VisualContent: models.VisualContent{Scenes: []models.VisualScene{{DurationSeconds: 5}}},
			},
			{
				SegmentNumber: 1,
				LowerThird:    models.LowerThird{Title: "FÖRSTA"},
				VisualContent: models.VisualContent{Scenes: []models.VisualScene{{DurationSeconds: 8}, {DurationSeconds: 6}}},
			},
		},
	}
}

func testAssets(script *models.Script) *models.CompositionAssets {
	a := models.NewCompositionAssets("b-1", script)
	a.IntroAudioPath = "intro.mp3"
	a.OutroAudioPath = "outro.mp3"
	a.OutroAvatarPath = "outro.mp4"
	for n, seg := range a.Segments {
		seg.AnchorIntroAudioPath = "ai.mp3"
		seg.AnchorIntroVideoPath = "ai.mp4"
		seg.VoiceoverAudioPath = "vo.mp3"
		seg.AnchorOutroAudioPath = "ao.mp3"
		seg.AnchorOutroVideoPath = "ao.mp4"
		for i := range seg.VisualPaths {
			seg.VisualPaths[i] = "v.jpg"
		}
		a.Segments[n] = seg
	}
	return a
}

func TestBuild_OrdersClips(t *testing.T) {
	script := testScript()
	m := Build(script, testAssets(script), time.Unix(0, 0).UTC())

	var kinds []string
	var segments []int
	for _, c := range m.Clips {
		kinds = append(kinds, c.Kind)
		segments = append(segments, c.Segment)
	}
	assert.Equal(t, []string{
		"intro",
		"anchor_intro", "broll", "broll", "anchor_outro",
		"anchor_intro", "broll", "anchor_outro",
		"outro",
	}, kinds)
	assert.Equal(t, []int{0, 1, 1, 1, 1, 2, 2, 2, 0}, segments)

	// no intro avatar: fall back to the audio track
	assert.Equal(t, "intro.mp3", m.Clips[0].Path)
	assert.Equal(t, "outro.mp4", m.Clips[8].Path)
	assert.Equal(t, "FÖRSTA", m.Clips[1].Caption)
	assert.Equal(t, "vo.mp3", m.Clips[2].AudioPath)
	assert.Empty(t, m.Clips[3].AudioPath)
	assert.Equal(t, 6.0, m.Clips[3].Seconds)
}

func TestComposer_WritesManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	c, err := NewComposer(dir, zerolog.Nop())
	require.NoError(t, err)

	script := testScript()
	path, err := c.ComposeVideo(context.Background(), script, testAssets(script))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b-1.json"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "b-1", m.BroadcastID)
	assert.Len(t, m.Clips, 9)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestComposer_Validation(t *testing.T) {
	_, err := NewComposer("", zerolog.Nop())
	assert.Error(t, err)

	c, err := NewComposer(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	_, err = c.ComposeVideo(context.Background(), nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
