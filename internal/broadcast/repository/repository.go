package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

// JobStore persists broadcast jobs, their generated assets and the status outbox.
//
// Update is version-checked: job.Version must equal the stored version, and on
// success job.Version is advanced to the new stored value. Every update that
// changes the status appends a BroadcastStatusChanged record to the outbox in
// the same write.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	ListRecent(ctx context.Context, n int) ([]*models.Job, error)

	SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error
	ListAssets(ctx context.Context, broadcastID uuid.UUID) ([]models.GeneratedAsset, error)

	GetPendingEvents(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkEventProcessed(ctx context.Context, id int64) error
}

// ErrUnchanged can be returned by a Mutate callback to skip the write.
var ErrUnchanged = errors.New("unchanged")

const maxMutateAttempts = 5

// Mutate applies fn to a fresh copy of the job and writes it back, retrying
// from a new read when another writer got there first.
func Mutate(ctx context.Context, store JobStore, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		job, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			if errors.Is(err, ErrUnchanged) {
				return job, nil
			}
			return nil, err
		}
		err = store.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mutate job %s: %d attempts: %w", id, maxMutateAttempts, lastErr)
}
