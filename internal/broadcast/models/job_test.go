package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestJob() *Job {
	return NewJob(uuid.New(), uuid.New(), DefaultRequest(), t0)
}

func TestNewJob_Pending(t *testing.T) {
	j := newTestJob()
	assert.Equal(t, domain.Pending, j.Status)
	assert.Equal(t, "Sändning skapad", j.StatusMessage)
	assert.Equal(t, 0, j.ProgressPercent)
	assert.Nil(t, j.Script)
	assert.Nil(t, j.CompletedAt)
	assert.Equal(t, t0, j.CreatedAt)
}

func TestJob_AdvanceWalksPipeline(t *testing.T) {
	j := newTestJob()
	steps := []domain.Status{
		domain.FetchingNews,
		domain.GeneratingScript,
		domain.GeneratingAudio,
		domain.GeneratingAvatars,
		domain.GeneratingBRoll,
		domain.Composing,
	}
	prev := j.ProgressPercent
	for i, s := range steps {
		now := t0.Add(time.Duration(i+1) * time.Second)
		require.NoError(t, j.Advance(s, now))
		assert.Equal(t, s, j.Status)
		assert.GreaterOrEqual(t, j.ProgressPercent, prev)
		assert.Equal(t, now, j.UpdatedAt)
		prev = j.ProgressPercent
	}

	require.NoError(t, j.Complete("/out/video.mp4", t0.Add(time.Minute)))
	assert.Equal(t, 100, j.ProgressPercent)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, "/out/video.mp4", j.OutputVideoPath)
}

func TestJob_AdvanceRejectsSkipsAndTerminalStates(t *testing.T) {
	j := newTestJob()
	err := j.Advance(domain.GeneratingAudio, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.ErrorIs(t, j.Advance(domain.Completed, t0), domain.ErrInvalidTransition)
	assert.ErrorIs(t, j.Advance(domain.Failed, t0), domain.ErrInvalidTransition)
	assert.Equal(t, domain.Pending, j.Status)
}

func TestJob_CompleteRequiresPath(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, j.Advance(domain.GeneratingScript, t0))
	require.NoError(t, j.Advance(domain.GeneratingAudio, t0))
	require.NoError(t, j.Advance(domain.GeneratingAvatars, t0))
	require.NoError(t, j.Advance(domain.GeneratingBRoll, t0))
	require.NoError(t, j.Advance(domain.Composing, t0))

	assert.ErrorIs(t, j.Complete("", t0), ErrInvalidArgument)
	assert.Equal(t, domain.Composing, j.Status)
}

func TestJob_FailKeepsProgressAndFreezes(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, j.Advance(domain.GeneratingScript, t0))

	require.NoError(t, j.Fail("", t0.Add(time.Second)))
	assert.Equal(t, domain.Failed, j.Status)
	assert.Equal(t, "unknown error", j.ErrorMessage)
	assert.Equal(t, 25, j.ProgressPercent)
	assert.Nil(t, j.CompletedAt)

	frozen := *j
	assert.ErrorIs(t, j.Fail("again", t0.Add(time.Hour)), domain.ErrInvalidTransition)
	assert.ErrorIs(t, j.AttachScript(&Script{}, t0.Add(time.Hour)), domain.ErrInvalidTransition)
	assert.ErrorIs(t, j.Complete("/x.mp4", t0.Add(time.Hour)), domain.ErrInvalidTransition)
	assert.Equal(t, frozen, *j)
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, j.Advance(domain.GeneratingScript, t0))
	require.NoError(t, j.AttachScript(&Script{
		Segments: []Segment{{
			SegmentNumber: 1,
			VisualContent: VisualContent{Scenes: []VisualScene{{Description: "a", SearchTerms: []string{"x"}}}},
		}},
	}, t0))

	cp := j.Clone()
	cp.Request.Categories[0] = Kultur
	cp.Script.Segments[0].VisualContent.Scenes[0].SearchTerms[0] = "y"

	assert.NotEqual(t, Kultur, j.Request.Categories[0])
	assert.Equal(t, "x", j.Script.Segments[0].VisualContent.Scenes[0].SearchTerms[0])
}

func TestJob_AttachScriptStampsJobID(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, j.Advance(domain.GeneratingScript, t0))

	s := &Script{BroadcastID: "generator-id", Segments: []Segment{{SegmentNumber: 1}}}
	require.NoError(t, j.AttachScript(s, t0))
	assert.Equal(t, j.ID.String(), j.Script.BroadcastID)
	assert.Equal(t, "generator-id", s.BroadcastID)

	assert.ErrorIs(t, j.AttachScript(nil, t0), ErrInvalidArgument)
}
