package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type outboxEntry struct {
	record    models.OutboxRecord
	processed bool
}

type MemoryRepository struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]*models.Job
	assets map[models.AssetKey]models.GeneratedAsset
	outbox []outboxEntry
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:   make(map[uuid.UUID]*models.Job),
		assets: make(map[models.AssetKey]models.GeneratedAsset),
	}
}

var _ JobStore = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return models.ErrConflict
	}

	job.Version = 1
	r.jobs[job.ID] = job.Clone()
	return r.appendEventLocked(models.NewBroadcastStatusChanged("", job))
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[job.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != job.Version {
		return fmt.Errorf("%w: version %d, stored %d", models.ErrConflict, job.Version, stored.Version)
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, stored.Status)
	}

	from := stored.Status
	job.Version = stored.Version + 1
	r.jobs[job.ID] = job.Clone()
	if from != job.Status {
		return r.appendEventLocked(models.NewBroadcastStatusChanged(from, job))
	}
	return nil
}

func (r *MemoryRepository) ListRecent(ctx context.Context, n int) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []*models.Job{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		all = append(all, j)
	}
	sort.Slice(all, func(i, k int) bool {
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})
	if len(all) > n {
		all = all[:n]
	}

	out := make([]*models.Job, len(all))
	for i, j := range all {
		out[i] = j.Clone()
	}
	return out, nil
}

func (r *MemoryRepository) SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error {
	if asset == nil || asset.BroadcastID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := asset.Key()
	if prev, ok := r.assets[key]; ok {
		asset.ID = prev.ID
	} else if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	r.assets[key] = *asset
	return nil
}

func (r *MemoryRepository) ListAssets(ctx context.Context, broadcastID uuid.UUID) ([]models.GeneratedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.GeneratedAsset, 0)
	for _, a := range r.assets {
		if a.BroadcastID == broadcastID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) GetPendingEvents(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.OutboxRecord{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.OutboxRecord, 0, limit)
	for _, e := range r.outbox {
		if len(out) >= limit {
			break
		}
		if !e.processed {
			out = append(out, e.record)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkEventProcessed(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].record.ID == id {
			r.outbox[i].processed = true
			r.compactOutboxLocked()
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *MemoryRepository) appendEventLocked(event models.DomainEvent) error {
	rec, err := models.NewOutboxRecord(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	r.nextID++
	rec.ID = r.nextID
	r.outbox = append(r.outbox, outboxEntry{record: rec})
	return nil
}

// compactOutboxLocked drops the processed prefix of the outbox.
func (r *MemoryRepository) compactOutboxLocked() {
	n := 0
	for n < len(r.outbox) && r.outbox[n].processed {
		n++
	}
	if n > 0 {
		r.outbox = append(r.outbox[:0], r.outbox[n:]...)
	}
}
