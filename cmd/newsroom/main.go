package main

import (
	"context"
	"fmt"
	"os"

	"github.com/romariotrain/newsroom/internal/app"
	"github.com/romariotrain/newsroom/internal/config"
	"github.com/romariotrain/newsroom/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Logging, "newsroom", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	code := app.Run("newsroom", logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}
