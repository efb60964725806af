package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type RestartPolicy struct {
	// Every is the sustained restart rate; Burst restarts may happen back to back.
	Every time.Duration
	Burst int
	// MaxRestarts gives up after that many failed runs; 0 means never.
	MaxRestarts int
}

// Supervise runs loop until ctx is cancelled, restarting it when it fails or
// panics. A loop that returns nil is not restarted.
func Supervise(ctx context.Context, name string, policy RestartPolicy, logger zerolog.Logger, loop Runner) error {
	every := policy.Every
	if every <= 0 {
		every = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(every), max(policy.Burst, 1))
	logger = logger.With().Str("loop", name).Logger()

	restarts := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		err := protect(ctx, loop)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			logger.Info().Msg("loop finished")
			return nil
		}

		restarts++
		if policy.MaxRestarts > 0 && restarts > policy.MaxRestarts {
			return fmt.Errorf("%s: giving up after %d restarts: %w", name, policy.MaxRestarts, err)
		}
		logger.Warn().Err(err).Int("restart", restarts).Msg("loop failed, restarting")
	}
}

func protect(ctx context.Context, loop Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return loop(ctx)
}
