package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/newsroom/internal/app"
	"github.com/romariotrain/newsroom/internal/bootstrap"
	"github.com/romariotrain/newsroom/internal/broadcast/httpapi"
	"github.com/romariotrain/newsroom/internal/broadcast/outbox"
	"github.com/romariotrain/newsroom/internal/broadcast/service"
	"github.com/romariotrain/newsroom/internal/broadcast/statusfeed"
	"github.com/romariotrain/newsroom/internal/broadcast/watchdog"
	"github.com/romariotrain/newsroom/internal/broadcast/worker"
	"github.com/romariotrain/newsroom/internal/config"
)

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	b, err := bootstrap.OpenBroker(cfg.Broker, "newsroom", logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer b.Close()

	set, err := bootstrap.Providers(cfg.Providers, logger)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	// Dependencies
	local, err := service.NewLocalExecutor(service.LocalExecutorConfig{
		Ports:    set,
		Timeouts: bootstrap.Timeouts(cfg.Pipeline.Timeouts),
		Assets:   store,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	policy := bootstrap.RestartPolicy(cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)

	var exec service.Executor = local
	if cfg.Pipeline.Executor == "queue" {
		results := service.NewResultDispatcher(b, cfg.Pipeline.Instance, cfg.Pipeline.ResultPrefetch, logger)
		qe, err := service.NewQueueExecutor(service.QueueExecutorConfig{
			Local:       local,
			Broker:      b,
			Results:     results,
			WaitTimeout: cfg.Pipeline.StageWait,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		exec = qe

		var runners []*worker.Runner
		if cfg.Workers.Embedded {
			if runners, err = bootstrap.Workers(cfg.Workers, b, store, set, logger); err != nil {
				return err
			}
		}

		g.Go(func() error {
			return app.Supervise(gctx, "result_dispatcher", policy, logger, results.Run)
		})
		if len(runners) > 0 {
			g.Go(func() error { return bootstrap.RunWorkers(gctx, runners, policy, logger) })
		}
	}

	svc := service.New(store, exec, service.Config{
		MaxParallelCalls: cfg.Pipeline.MaxParallelCalls,
		FinalizeTimeout:  cfg.Pipeline.FinalizeTimeout,
	}, logger)

	pub, err := outbox.NewPublisher(outbox.PublisherConfig{
		Store:     store,
		Broker:    b,
		Interval:  cfg.Outbox.Interval,
		BatchSize: cfg.Outbox.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	g.Go(func() error { return app.Supervise(gctx, "outbox", policy, logger, pub.Start) })

	hub := statusfeed.NewHub(b, logger)
	g.Go(func() error { return app.Supervise(gctx, "status_feed", policy, logger, hub.Run) })

	if cfg.Watchdog.Enabled {
		wd, err := watchdog.New(watchdog.Config{
			Store:      store,
			Schedule:   cfg.Watchdog.Schedule,
			StaleAfter: cfg.Watchdog.StaleAfter,
			ScanLimit:  cfg.Watchdog.ScanLimit,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return wd.Start(gctx) })
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(httpapi.New(svc, hub, set.News, logger)),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		// SSE-стримы завершаются вместе с процессом, иначе Shutdown их ждёт
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
