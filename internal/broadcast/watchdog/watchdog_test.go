package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func storeJob(t *testing.T, repo *repository.MemoryRepository, updated time.Time, terminal bool) *models.Job {
	t.Helper()
	job := models.NewJob(uuid.New(), uuid.New(), models.DefaultRequest(), updated)
	require.NoError(t, job.Advance(domain.FetchingNews, updated))
	if terminal {
		require.NoError(t, job.Fail("boom", updated))
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func newWatchdog(t *testing.T, repo repository.JobStore) *Watchdog {
	t.Helper()
	w, err := New(Config{Store: repo, StaleAfter: 10 * time.Minute, Logger: zerolog.Nop()})
	require.NoError(t, err)
	w.clock = func() time.Time { return now }
	return w
}

func TestNew_Validation(t *testing.T) {
	repo := repository.NewMemoryRepository()

	_, err := New(Config{StaleAfter: time.Minute})
	assert.EqualError(t, err, "job store is required")
	_, err = New(Config{Store: repo})
	assert.EqualError(t, err, "stale_after must be positive, got: 0s")
	_, err = New(Config{Store: repo, StaleAfter: time.Minute, Schedule: "not a schedule"})
	assert.Error(t, err)

	w, err := New(Config{Store: repo, StaleAfter: time.Minute, Schedule: "*/30 * * * * *"})
	require.NoError(t, err)
	assert.Equal(t, defaultScanLimit, w.scanLimit)
}

func TestSweep_FailsOnlyStaleRunningJobs(t *testing.T) {
	repo := repository.NewMemoryRepository()
	stale := storeJob(t, repo, now.Add(-time.Hour), false)
	fresh := storeJob(t, repo, now.Add(-time.Minute), false)
	done := storeJob(t, repo, now.Add(-time.Hour), true)

	w := newWatchdog(t, repo)
	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Failed, got.Status)
	assert.Equal(t, "FetchingNews: stalled, no progress for 10m0s", got.ErrorMessage)
	assert.Equal(t, 10, got.ProgressPercent)
	assert.Equal(t, now, got.UpdatedAt)

	got, err = repo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchingNews, got.Status)

	got, err = repo.GetByID(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.ErrorMessage)

	// second sweep finds nothing new
	n, err = w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStart_RunsOnSchedule(t *testing.T) {
	repo := repository.NewMemoryRepository()
	stale := storeJob(t, repo, time.Now().Add(-time.Hour), false)

	w, err := New(Config{Store: repo, StaleAfter: time.Minute, Schedule: "@every 1s", Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		j, err := repo.GetByID(context.Background(), stale.ID)
		return err == nil && j.Status == domain.Failed
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not stop")
	}
}
