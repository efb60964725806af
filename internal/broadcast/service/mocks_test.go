package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *StoreMock) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Update(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *StoreMock) ListRecent(ctx context.Context, n int) ([]*models.Job, error) {
	args := m.Called(ctx, n)
	if v := args.Get(0); v != nil {
		return v.([]*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *StoreMock) ListAssets(ctx context.Context, broadcastID uuid.UUID) ([]models.GeneratedAsset, error) {
	args := m.Called(ctx, broadcastID)
	if v := args.Get(0); v != nil {
		return v.([]models.GeneratedAsset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) GetPendingEvents(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.OutboxRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) MarkEventProcessed(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeExecutor produces a deterministic script of one segment per article with
// two scenes each, and counts every call.
type fakeExecutor struct {
	articles int

	newsErr    error
	scriptErr  error
	emptyPlan  bool
	speechErr  func(SpeechTask) error
	avatarErr  func(AvatarTask) error
	visualErr  func(VisualTask) error
	composeErr error

	// block, when set, is waited on by every speech call.
	block chan struct{}

	news, script, speech, avatar, visual, compose atomic.Int32

	mu        sync.Mutex
	composed  *models.CompositionAssets
	avatarIn  []string
	requested models.Request
}

func (f *fakeExecutor) FetchArticles(ctx context.Context, job *models.Job) ([]models.Article, error) {
	f.news.Add(1)
	f.mu.Lock()
	f.requested = job.Request
	f.mu.Unlock()
	if f.newsErr != nil {
		return nil, f.newsErr
	}
	n := f.articles
	if n == 0 {
		n = 3
	}
	out := make([]models.Article, n)
	for i := range out {
		out[i] = models.Article{ID: fmt.Sprintf("a%d", i+1), Title: fmt.Sprintf("Nyhet %d", i+1), Category: job.Request.Categories[i%len(job.Request.Categories)]}
	}
	return out, nil
}

func (f *fakeExecutor) GenerateScript(ctx context.Context, job *models.Job, articles []models.Article) (*models.Script, error) {
	f.script.Add(1)
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	s := &models.Script{BroadcastID: job.ID.String(), Language: "sv-SE", TotalSegments: len(articles)}
	if f.emptyPlan {
		s.TotalSegments = 0
		return s, nil
	}
	for i, a := range articles {
		s.Segments = append(s.Segments, models.Segment{
			SegmentNumber: i + 1,
			Category:      a.Category,
			Headline:      a.Title,
			AnchorIntro:   models.Section{Text: "intro " + a.Title, Tone: "neutral"},
			Voiceover:     models.Section{Text: "vo " + a.Title, Tone: "neutral"},
			AnchorOutro:   models.Section{Text: "outro " + a.Title, Tone: "neutral"},
			VisualContent: models.VisualContent{Scenes: []models.VisualScene{
				{Description: "scene 0", Type: models.EditorialImage, DurationSeconds: 8},
				{Description: "scene 1", Type: models.StockFootage, DurationSeconds: 8},
			}},
		})
	}
	return s, nil
}

func (f *fakeExecutor) SynthesizeSpeech(ctx context.Context, job *models.Job, task SpeechTask) (ports.SpeechResult, error) {
	f.speech.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ports.SpeechResult{}, ctx.Err()
		}
	}
	if f.speechErr != nil {
		if err := f.speechErr(task); err != nil {
			return ports.SpeechResult{}, err
		}
	}
	return ports.SpeechResult{AudioPath: fmt.Sprintf("audio/%d-%s.mp3", task.SegmentNumber, task.Section), DurationSeconds: 3}, nil
}

func (f *fakeExecutor) RenderAvatar(ctx context.Context, job *models.Job, task AvatarTask) (ports.AvatarResult, error) {
	f.avatar.Add(1)
	f.mu.Lock()
	f.avatarIn = append(f.avatarIn, task.AudioPath)
	f.mu.Unlock()
	if f.avatarErr != nil {
		if err := f.avatarErr(task); err != nil {
			return ports.AvatarResult{}, err
		}
	}
	return ports.AvatarResult{VideoPath: fmt.Sprintf("avatar/%d-%s.mp4", task.SegmentNumber, task.Section)}, nil
}

func (f *fakeExecutor) GenerateVisual(ctx context.Context, job *models.Job, task VisualTask) (ports.VisualResult, error) {
	f.visual.Add(1)
	if f.visualErr != nil {
		if err := f.visualErr(task); err != nil {
			return ports.VisualResult{}, err
		}
	}
	return ports.VisualResult{Path: fmt.Sprintf("visual/%d-%d.jpg", task.SegmentNumber, task.SceneIndex)}, nil
}

func (f *fakeExecutor) ComposeVideo(ctx context.Context, job *models.Job, script *models.Script, assets *models.CompositionAssets) (string, error) {
	f.compose.Add(1)
	f.mu.Lock()
	f.composed = assets
	f.mu.Unlock()
	if f.composeErr != nil {
		return "", f.composeErr
	}
	return "output/" + job.ID.String() + ".mp4", nil
}
