package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

type Config struct {
	// MaxParallelCalls caps concurrent sub-tasks within one stage; 0 means unlimited.
	MaxParallelCalls int
	// FinalizeTimeout bounds the write of the terminal state after a run is aborted.
	FinalizeTimeout time.Duration
}

// Service drives broadcast jobs through the pipeline. Every job runs on its
// own goroutine bound to the service lifetime, not to the request that
// started it.
type Service struct {
	store  repository.JobStore
	exec   Executor
	cfg    Config
	logger zerolog.Logger
	clock  func() time.Time
	idGen  func() uuid.UUID

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closing bool
	runs    sync.WaitGroup
}

func New(store repository.JobStore, exec Executor, cfg Config, logger zerolog.Logger) *Service {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:   store,
		exec:    exec,
		cfg:     cfg,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		clock:   time.Now,
		idGen:   uuid.New,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// StartBroadcast persists a Pending job, starts its pipeline in the background
// and returns the Pending snapshot.
func (s *Service) StartBroadcast(ctx context.Context, req models.Request) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, ErrShuttingDown
	}

	job := models.NewJob(s.idGen(), s.idGen(), req, s.clock().UTC())
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// job принадлежит горутине пайплайна, дальше читаем только snapshot
	snapshot := job.Clone()
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.run(s.baseCtx, job)
	}()

	s.logger.Info().
		Str("broadcast_id", snapshot.ID.String()).
		Str("correlation_id", snapshot.CorrelationID.String()).
		Int("hours", req.TimePeriodHours).
		Int("max_articles", req.MaxArticles).
		Msg("broadcast started")
	return snapshot, nil
}

// GetJobStatus returns the stored job. It never changes state.
func (s *Service) GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListRecent(ctx context.Context, n int) ([]*models.Job, error) {
	return s.store.ListRecent(ctx, n)
}

// Shutdown stops accepting jobs, cancels in-flight runs and waits for them to
// record their terminal state or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
