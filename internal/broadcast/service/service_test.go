package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

func newTestService(t *testing.T, exec Executor) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	svc := New(repo, exec, Config{}, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, repo
}

func waitTerminal(t *testing.T, svc *Service, id uuid.UUID) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := svc.GetJobStatus(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

// statusHistory decodes the outbox into the sequence of statuses the job went through.
func statusHistory(t *testing.T, repo *repository.MemoryRepository, id uuid.UUID) []models.BroadcastStatusMessage {
	t.Helper()
	records, err := repo.GetPendingEvents(context.Background(), 1000)
	require.NoError(t, err)
	var out []models.BroadcastStatusMessage
	for _, r := range records {
		var msg models.BroadcastStatusMessage
		require.NoError(t, json.Unmarshal(r.Payload, &msg))
		if msg.BroadcastID == id {
			out = append(out, msg)
		}
	}
	return out
}

func request(hours int, max int, cats ...models.Category) models.Request {
	return models.Request{TimePeriodHours: hours, MaxArticles: max, Categories: cats}
}

func TestStartBroadcast_ReturnsPendingAndIsReadable(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{})}
	svc, _ := newTestService(t, exec)

	fixedTime := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixedTime }

	a, err := svc.StartBroadcast(context.Background(), models.DefaultRequest())
	require.NoError(t, err)
	b, err := svc.StartBroadcast(context.Background(), models.DefaultRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.Pending, a.Status)
	assert.Equal(t, 0, a.ProgressPercent)
	assert.Equal(t, fixedTime, a.CreatedAt)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.CorrelationID, b.CorrelationID)

	got, err := svc.GetJobStatus(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	close(exec.block)
	waitTerminal(t, svc, a.ID)
	waitTerminal(t, svc, b.ID)
}

func TestStartBroadcast_HappyPath(t *testing.T) {
	exec := &fakeExecutor{articles: 3}
	svc, repo := newTestService(t, exec)

	// 24h, two categories, at most three articles
	req := request(24, 3, models.Inrikes, models.Sport)
	started, err := svc.StartBroadcast(context.Background(), req)
	require.NoError(t, err)

	job := waitTerminal(t, svc, started.ID)
	require.Equal(t, domain.Completed, job.Status, job.ErrorMessage)
	assert.Equal(t, 100, job.ProgressPercent)
	assert.Equal(t, "output/"+job.ID.String()+".mp4", job.OutputVideoPath)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Script)
	assert.Len(t, job.Script.Segments, 3)
	assert.Equal(t, req, exec.requested)

	// 2 + 3×segments speech, 2×segments avatar, one visual per scene
	assert.Equal(t, int32(1), exec.news.Load())
	assert.Equal(t, int32(1), exec.script.Load())
	assert.Equal(t, int32(11), exec.speech.Load())
	assert.Equal(t, int32(6), exec.avatar.Load())
	assert.Equal(t, int32(6), exec.visual.Load())
	assert.Equal(t, int32(1), exec.compose.Load())

	composed := exec.composed
	require.NotNil(t, composed)
	assert.Empty(t, composed.Missing())
	assert.Empty(t, composed.IntroAvatarPath)
	assert.Equal(t, []string{"visual/2-0.jpg", "visual/2-1.jpg"}, composed.Segments[2].VisualPaths)
	assert.Equal(t, "audio/1-intro.mp3", composed.Segments[1].AnchorIntroAudioPath)
	assert.Contains(t, exec.avatarIn, "audio/3-outro.mp3")

	want := []domain.Status{
		domain.Pending, domain.FetchingNews, domain.GeneratingScript, domain.GeneratingAudio,
		domain.GeneratingAvatars, domain.GeneratingBRoll, domain.Composing, domain.Completed,
	}
	history := statusHistory(t, repo, job.ID)
	require.Len(t, history, len(want))
	prev := -1
	for i, msg := range history {
		assert.Equal(t, want[i], msg.Status)
		assert.GreaterOrEqual(t, msg.ProgressPercent, prev)
		assert.Equal(t, domain.Message(msg.Status), msg.StatusMessage)
		prev = msg.ProgressPercent
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Запуск логирует снимок, пока горутина пайплайна уже двигает job.
func TestStartBroadcast_LogsWhileRunAdvances(t *testing.T) {
	out := &lockedBuffer{}
	repo := repository.NewMemoryRepository()
	svc := New(repo, &fakeExecutor{articles: 2}, Config{}, zerolog.New(out))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	for range 20 {
		started, err := svc.StartBroadcast(context.Background(), request(12, 3, models.Sport))
		require.NoError(t, err)
		assert.Equal(t, domain.Pending, started.Status)

		job := waitTerminal(t, svc, started.ID)
		assert.Equal(t, domain.Completed, job.Status, job.ErrorMessage)
		assert.Contains(t, out.String(), `"broadcast_id":"`+started.ID.String()+`"`)
		assert.Contains(t, out.String(), `"correlation_id":"`+started.CorrelationID.String()+`"`)
	}
}

func TestStartBroadcast_ScriptFailure(t *testing.T) {
	exec := &fakeExecutor{scriptErr: errors.New("model overloaded")}
	svc, repo := newTestService(t, exec)

	started, err := svc.StartBroadcast(context.Background(), request(24, 3, models.Inrikes, models.Sport))
	require.NoError(t, err)

	job := waitTerminal(t, svc, started.ID)
	assert.Equal(t, domain.Failed, job.Status)
	assert.Equal(t, "GeneratingScript: model overloaded", job.ErrorMessage)
	assert.Equal(t, 25, job.ProgressPercent)
	assert.Nil(t, job.Script)
	assert.Nil(t, job.CompletedAt)

	assert.Equal(t, int32(0), exec.speech.Load())
	assert.Equal(t, int32(0), exec.avatar.Load())
	assert.Equal(t, int32(0), exec.visual.Load())
	assert.Equal(t, int32(0), exec.compose.Load())

	history := statusHistory(t, repo, job.ID)
	last := history[len(history)-1]
	assert.Equal(t, domain.GeneratingScript, last.From)
	assert.Equal(t, domain.Failed, last.Status)
}

func TestStartBroadcast_EmptyScriptFails(t *testing.T) {
	exec := &fakeExecutor{emptyPlan: true}
	svc, _ := newTestService(t, exec)

	started, err := svc.StartBroadcast(context.Background(), models.DefaultRequest())
	require.NoError(t, err)

	job := waitTerminal(t, svc, started.ID)
	assert.Equal(t, domain.Failed, job.Status)
	assert.Contains(t, job.ErrorMessage, ErrEmptyScript.Error())
	assert.Equal(t, int32(0), exec.speech.Load())
}

func TestStartBroadcast_SubTaskFailureFailsStage(t *testing.T) {
	tests := []struct {
		name       string
		exec       *fakeExecutor
		wantPrefix string
		progress   int
	}{
		{
			name:       "news",
			exec:       &fakeExecutor{newsErr: errors.New("feed down")},
			wantPrefix: "FetchingNews: ",
			progress:   10,
		},
		{
			name: "speech",
			exec: &fakeExecutor{speechErr: func(task SpeechTask) error {
				if task.SegmentNumber == 2 && task.Section == models.SectionVoiceover {
					return errors.New("tts quota")
				}
				return nil
			}},
			wantPrefix: "GeneratingAudio: ",
			progress:   40,
		},
		{
			name: "avatar",
			exec: &fakeExecutor{avatarErr: func(task AvatarTask) error {
				return errors.New("renderer crashed")
			}},
			wantPrefix: "GeneratingAvatars: ",
			progress:   65,
		},
		{
			name: "visual",
			exec: &fakeExecutor{visualErr: func(task VisualTask) error {
				if task.SceneIndex == 1 {
					return errors.New("no footage")
				}
				return nil
			}},
			wantPrefix: "GeneratingBRoll: ",
			progress:   65,
		},
		{
			name:       "compose",
			exec:       &fakeExecutor{composeErr: errors.New("ffmpeg exit 1")},
			wantPrefix: "Composing: ",
			progress:   85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, tt.exec)
			started, err := svc.StartBroadcast(context.Background(), request(24, 3, models.Inrikes))
			require.NoError(t, err)

			job := waitTerminal(t, svc, started.ID)
			assert.Equal(t, domain.Failed, job.Status)
			assert.True(t, strings.HasPrefix(job.ErrorMessage, tt.wantPrefix), job.ErrorMessage)
			assert.Equal(t, tt.progress, job.ProgressPercent)
			assert.Empty(t, job.OutputVideoPath)

			if tt.name != "compose" {
				assert.Equal(t, int32(0), tt.exec.compose.Load())
			}
			if tt.name == "news" || tt.name == "speech" {
				assert.Equal(t, int32(0), tt.exec.avatar.Load())
				assert.Equal(t, int32(0), tt.exec.visual.Load())
			}
		})
	}
}

func TestShutdown_FailsInFlightRuns(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{})}
	repo := repository.NewMemoryRepository()
	svc := New(repo, exec, Config{}, zerolog.Nop())

	started, err := svc.StartBroadcast(context.Background(), models.DefaultRequest())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return exec.speech.Load() > 0 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	job, err := repo.GetByID(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Failed, job.Status)
	assert.Equal(t, cancelledReason, job.ErrorMessage)
	assert.Equal(t, 40, job.ProgressPercent)

	_, err = svc.StartBroadcast(context.Background(), models.DefaultRequest())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestGetJobStatus_InvalidID(t *testing.T) {
	st := new(StoreMock)
	svc := New(st, &fakeExecutor{}, Config{}, zerolog.Nop())

	// Invalid input should be rejected before calling the repository.
	got, err := svc.GetJobStatus(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	require.Nil(t, got)
	st.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetJobStatus_NotFoundPassesThrough(t *testing.T) {
	st := new(StoreMock)
	svc := New(st, &fakeExecutor{}, Config{}, zerolog.Nop())
	id := uuid.New()

	st.On("GetByID", mock.Anything, id).Return(nil, models.ErrNotFound).Once()

	got, err := svc.GetJobStatus(context.Background(), id)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Nil(t, got)
	st.AssertExpectations(t)
}

func TestStartBroadcast_CreateErrorPropagated(t *testing.T) {
	st := new(StoreMock)
	exec := &fakeExecutor{}
	svc := New(st, exec, Config{}, zerolog.Nop())

	// Nothing runs when the job cannot be persisted.
	st.On("Create", mock.Anything, mock.Anything).Return(models.ErrConflict).Once()

	got, err := svc.StartBroadcast(context.Background(), models.DefaultRequest())
	require.ErrorIs(t, err, models.ErrConflict)
	require.Nil(t, got)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, int32(0), exec.news.Load())
	st.AssertExpectations(t)
}

func TestListRecent_Delegates(t *testing.T) {
	st := new(StoreMock)
	svc := New(st, &fakeExecutor{}, Config{}, zerolog.Nop())
	want := []*models.Job{{ID: uuid.New()}}

	st.On("ListRecent", mock.Anything, 5).Return(want, nil).Once()

	got, err := svc.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	st.AssertExpectations(t)
}

func TestStageError(t *testing.T) {
	cause := errors.New("boom")
	err := stageErr(domain.GeneratingAudio, cause)
	assert.Equal(t, "GeneratingAudio: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.GeneratingAudio, se.Stage)

	// already tagged errors keep their original stage
	assert.Same(t, err, stageErr(domain.Composing, err))
	assert.NoError(t, stageErr(domain.Composing, nil))
}
