package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newJob(at time.Time) *models.Job {
	return models.NewJob(uuid.New(), uuid.New(), models.DefaultRequest(), at)
}

func TestMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)

	require.NoError(t, repo.Create(ctx, j))
	assert.Equal(t, int64(1), j.Version)
	assert.ErrorIs(t, repo.Create(ctx, j), models.ErrConflict)

	got, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j, got)

	// stored copy is isolated from the caller
	got.StatusMessage = "mutated"
	again, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sändning skapad", again.StatusMessage)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.GetByID(ctx, uuid.Nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestMemory_UpdateVersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)
	require.NoError(t, repo.Create(ctx, j))

	stale := j.Clone()
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, repo.Update(ctx, j))
	assert.Equal(t, int64(2), j.Version)

	require.NoError(t, stale.Advance(domain.FetchingNews, t0))
	assert.ErrorIs(t, repo.Update(ctx, stale), models.ErrConflict)

	assert.ErrorIs(t, repo.Update(ctx, newJob(t0)), models.ErrNotFound)
}

func TestMemory_UpdateRejectsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)
	require.NoError(t, repo.Create(ctx, j))
	require.NoError(t, j.Fail("boom", t0))
	require.NoError(t, repo.Update(ctx, j))

	j.ErrorMessage = "rewritten"
	assert.ErrorIs(t, repo.Update(ctx, j), domain.ErrInvalidTransition)

	got, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestMemory_ListRecentOrderAndBound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	offsets := []int{3, 0, 5, 1, 4, 2}
	for _, off := range offsets {
		require.NoError(t, repo.Create(ctx, newJob(t0.Add(time.Duration(off)*time.Minute))))
	}

	got, err := repo.ListRecent(ctx, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.After(got[i].CreatedAt))
	}
	assert.Equal(t, t0.Add(5*time.Minute), got[0].CreatedAt)

	all, err := repo.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, len(offsets))

	none, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_SaveAssetUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	id := uuid.New()

	a := &models.GeneratedAsset{BroadcastID: id, SegmentNumber: 1, Section: models.SectionIntro, Type: models.AssetTtsAudio, FilePath: "first.mp3"}
	require.NoError(t, repo.SaveAsset(ctx, a))
	firstID := a.ID

	b := &models.GeneratedAsset{BroadcastID: id, SegmentNumber: 1, Section: models.SectionIntro, Type: models.AssetTtsAudio, FilePath: "second.mp3"}
	require.NoError(t, repo.SaveAsset(ctx, b))
	assert.Equal(t, firstID, b.ID)

	list, err := repo.ListAssets(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second.mp3", list[0].FilePath)

	other, err := repo.ListAssets(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemory_OutboxRecordsStatusChanges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)
	require.NoError(t, repo.Create(ctx, j))
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, repo.Update(ctx, j))

	// no status change, no event
	j.UpdatedAt = t0.Add(time.Second)
	require.NoError(t, repo.Update(ctx, j))

	events, err := repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var msg models.BroadcastStatusMessage
	require.NoError(t, json.Unmarshal(events[1].Payload, &msg))
	assert.Equal(t, j.ID, msg.BroadcastID)
	assert.Equal(t, domain.Pending, msg.From)
	assert.Equal(t, domain.FetchingNews, msg.Status)
	assert.Equal(t, 10, msg.ProgressPercent)

	require.NoError(t, repo.MarkEventProcessed(ctx, events[0].ID))
	pending, err := repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events[1].ID, pending[0].ID)

	assert.ErrorIs(t, repo.MarkEventProcessed(ctx, 999), models.ErrNotFound)
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)
	require.NoError(t, repo.Create(ctx, j))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Mutate(ctx, repo, j.ID, func(job *models.Job) error {
				job.UpdatedAt = job.UpdatedAt.Add(time.Second)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConflict)
	}
	require.Positive(t, ok)

	got, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+ok), got.Version)
	assert.Equal(t, t0.Add(time.Duration(ok)*time.Second), got.UpdatedAt)
}

func TestMutate_UnchangedSkipsWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	j := newJob(t0)
	require.NoError(t, repo.Create(ctx, j))

	got, err := Mutate(ctx, repo, j.ID, func(*models.Job) error { return ErrUnchanged })
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	boom := errors.New("boom")
	_, err = Mutate(ctx, repo, j.ID, func(*models.Job) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = Mutate(ctx, repo, uuid.New(), func(*models.Job) error { return nil })
	assert.ErrorIs(t, err, models.ErrNotFound)
}
