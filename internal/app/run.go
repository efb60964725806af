package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// shutdownGrace bounds how long Run waits for the runner after a signal.
const shutdownGrace = 30 * time.Second

type Runner func(ctx context.Context) error

// Run executes run until it returns or SIGINT/SIGTERM arrives, and returns
// the process exit code.
func Run(serviceName string, logger zerolog.Logger, run Runner) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, serviceName, logger, shutdownGrace, run)
}

func execute(ctx context.Context, serviceName string, logger zerolog.Logger, grace time.Duration, run Runner) int {
	logger.Info().Msgf("%s starting", serviceName)

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Msgf("%s shutting down", serviceName)
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msgf("%s failed", serviceName)
				return 1
			}
			logger.Info().Msgf("%s stopped", serviceName)
			return 0
		case <-time.After(grace):
			logger.Error().Dur("grace", grace).Msg("shutdown timed out")
			return 1
		}
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msgf("%s failed", serviceName)
			return 1
		}
		logger.Info().Msgf("%s stopped", serviceName)
		return 0
	}
}
