// Package watchdog fails broadcast jobs that stopped making progress, for
// example after a lost stage result or a crashed orchestrator.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

const defaultScanLimit = 200

type Config struct {
	Store repository.JobStore
	// Schedule is a cron spec; descriptors such as "@every 1m" are accepted.
	Schedule string
	// StaleAfter is how long a running job may go without an update.
	StaleAfter time.Duration
	// ScanLimit bounds how many of the most recent jobs a sweep inspects.
	ScanLimit int
	Logger    zerolog.Logger
}

type Watchdog struct {
	store      repository.JobStore
	schedule   cron.Schedule
	staleAfter time.Duration
	scanLimit  int
	clock      func() time.Time
	logger     zerolog.Logger
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config) (*Watchdog, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("stale_after must be positive, got: %v", cfg.StaleAfter)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaultScanLimit
	}
	return &Watchdog{
		store:      cfg.Store,
		schedule:   schedule,
		staleAfter: cfg.StaleAfter,
		scanLimit:  cfg.ScanLimit,
		clock:      time.Now,
		logger:     cfg.Logger.With().Str("component", "watchdog").Logger(),
	}, nil
}

// Start runs sweeps on the schedule until ctx is cancelled. A sweep still in
// progress when the next one is due is not overlapped.
func (w *Watchdog) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("sweep failed")
		}
	}))

	w.logger.Info().Dur("stale_after", w.staleAfter).Msg("watchdog started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info().Msg("watchdog stopped")
	return nil
}

// Sweep fails every running job whose last update is older than StaleAfter
// and returns how many it failed.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	jobs, err := w.store.ListRecent(ctx, w.scanLimit)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	now := w.clock().UTC()
	failed := 0
	for _, job := range jobs {
		if job.Status.IsTerminal() || now.Sub(job.UpdatedAt) < w.staleAfter {
			continue
		}

		var stalled bool
		_, err := repository.Mutate(ctx, w.store, job.ID, func(j *models.Job) error {
			// перечитанный job мог продвинуться после ListRecent
			stalled = !j.Status.IsTerminal() && now.Sub(j.UpdatedAt) >= w.staleAfter
			if !stalled {
				return repository.ErrUnchanged
			}
			reason := fmt.Sprintf("%s: stalled, no progress for %v", j.Status, w.staleAfter)
			return j.Fail(reason, now)
		})
		switch {
		case errors.Is(err, models.ErrNotFound):
			continue
		case err != nil:
			return failed, fmt.Errorf("fail job %s: %w", job.ID, err)
		case !stalled:
			continue
		}

		failed++
		w.logger.Warn().
			Str("broadcast_id", job.ID.String()).
			Str("correlation_id", job.CorrelationID.String()).
			Str("status", job.Status.String()).
			Time("updated_at", job.UpdatedAt).
			Msg("stale job failed")
	}
	return failed, nil
}
