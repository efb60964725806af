package sqlrepo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/storage/sqlite"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := New(db)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func newJob(at time.Time) *models.Job {
	return models.NewJob(uuid.New(), uuid.New(), models.DefaultRequest(), at)
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	j := newJob(t0)

	require.NoError(t, st.Create(ctx, j))
	assert.ErrorIs(t, st.Create(ctx, j), models.ErrConflict)

	got, err := st.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.CorrelationID, got.CorrelationID)
	assert.Equal(t, domain.Pending, got.Status)
	assert.Equal(t, j.Request, got.Request)
	assert.True(t, t0.Equal(got.CreatedAt))
	assert.Nil(t, got.Script)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, int64(1), got.Version)

	_, err = st.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_UpdatePersistsScriptAndChecksVersion(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	j := newJob(t0)
	require.NoError(t, st.Create(ctx, j))

	stale := j.Clone()

	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, j.Advance(domain.GeneratingScript, t0))
	require.NoError(t, j.AttachScript(&models.Script{
		BroadcastID: j.ID.String(),
		Language:    "sv-SE",
		Segments:    []models.Segment{{SegmentNumber: 1, Headline: "Rubrik"}},
	}, t0))
	require.NoError(t, st.Update(ctx, j))
	assert.Equal(t, int64(2), j.Version)

	got, err := st.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Script)
	assert.Equal(t, "Rubrik", got.Script.Segments[0].Headline)
	assert.Equal(t, 25, got.ProgressPercent)

	require.NoError(t, stale.Advance(domain.FetchingNews, t0))
	assert.ErrorIs(t, st.Update(ctx, stale), models.ErrConflict)
	assert.ErrorIs(t, st.Update(ctx, newJob(t0)), models.ErrNotFound)
}

func TestStore_TerminalJobIsFrozen(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	j := newJob(t0)
	require.NoError(t, st.Create(ctx, j))
	require.NoError(t, j.Fail("boom", t0.Add(time.Second)))
	require.NoError(t, st.Update(ctx, j))

	j.ErrorMessage = "other"
	assert.ErrorIs(t, st.Update(ctx, j), domain.ErrInvalidTransition)

	got, err := st.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Failed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	for _, off := range []int{2, 0, 4, 1, 3} {
		require.NoError(t, st.Create(ctx, newJob(t0.Add(time.Duration(off)*time.Hour))))
	}

	got, err := st.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, t0.Add(4*time.Hour).Equal(got[0].CreatedAt))
	assert.True(t, t0.Add(2*time.Hour).Equal(got[2].CreatedAt))

	none, err := st.ListRecent(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_SaveAssetUpsert(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	j := newJob(t0)
	require.NoError(t, st.Create(ctx, j))

	a := &models.GeneratedAsset{BroadcastID: j.ID, SegmentNumber: 1, Section: models.SectionVoiceover, SceneIndex: 1, Type: models.AssetVisualImage, FilePath: "one.jpg", CreatedAt: t0}
	require.NoError(t, st.SaveAsset(ctx, a))
	b := &models.GeneratedAsset{BroadcastID: j.ID, SegmentNumber: 1, Section: models.SectionVoiceover, SceneIndex: 1, Type: models.AssetVisualImage, FilePath: "two.jpg", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, st.SaveAsset(ctx, b))
	c := &models.GeneratedAsset{BroadcastID: j.ID, SegmentNumber: 1, Section: models.SectionVoiceover, SceneIndex: 0, Type: models.AssetVisualImage, FilePath: "zero.jpg", CreatedAt: t0}
	require.NoError(t, st.SaveAsset(ctx, c))

	list, err := st.ListAssets(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	paths := []string{list[0].FilePath, list[1].FilePath}
	assert.ElementsMatch(t, []string{"two.jpg", "zero.jpg"}, paths)
}

func TestStore_OutboxWrittenWithUpdate(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	j := newJob(t0)
	require.NoError(t, st.Create(ctx, j))
	require.NoError(t, j.Advance(domain.FetchingNews, t0))
	require.NoError(t, st.Update(ctx, j))

	events, err := st.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "BroadcastStatusChanged", events[0].EventType)
	assert.Equal(t, j.ID.String(), events[1].AggregateID)

	var msg models.BroadcastStatusMessage
	require.NoError(t, json.Unmarshal(events[1].Payload, &msg))
	assert.Equal(t, domain.FetchingNews, msg.Status)

	require.NoError(t, st.MarkEventProcessed(ctx, events[0].ID))
	pending, err := st.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.ErrorIs(t, st.MarkEventProcessed(ctx, 12345), models.ErrNotFound)
}
