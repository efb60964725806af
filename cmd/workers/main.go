package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/app"
	"github.com/romariotrain/newsroom/internal/bootstrap"
	"github.com/romariotrain/newsroom/internal/config"
	"github.com/romariotrain/newsroom/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Logging, "workers", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	code := app.Run("workers", logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.Broker.Driver == "memory" {
		return fmt.Errorf("workers need a shared broker, set broker.driver to kafka or nats")
	}
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("workers need a shared job store, set store.driver to postgres or sqlite")
	}

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	b, err := bootstrap.OpenBroker(cfg.Broker, "newsroom-workers", logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer b.Close()

	set, err := bootstrap.Providers(cfg.Providers, logger)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	runners, err := bootstrap.Workers(cfg.Workers, b, store, set, logger)
	if err != nil {
		return err
	}
	return bootstrap.RunWorkers(ctx, runners, bootstrap.RestartPolicy(cfg.Workers), logger)
}
