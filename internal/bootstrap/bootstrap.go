// Package bootstrap builds the store, broker, providers and workers the
// binaries share from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/newsroom/internal/app"
	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/kafka"
	"github.com/romariotrain/newsroom/internal/broadcast/natsq"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
	"github.com/romariotrain/newsroom/internal/broadcast/service"
	"github.com/romariotrain/newsroom/internal/broadcast/worker"
	"github.com/romariotrain/newsroom/internal/config"
	"github.com/romariotrain/newsroom/internal/providers/manifest"
	"github.com/romariotrain/newsroom/internal/providers/mock"
	"github.com/romariotrain/newsroom/internal/storage/postgres"
	"github.com/romariotrain/newsroom/internal/storage/sqlite"
	"github.com/romariotrain/newsroom/internal/storage/sqlrepo"
)

// OpenStore returns the configured job store and a func releasing it.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (repository.JobStore, func() error, error) {
	noop := func() error { return nil }

	var (
		store   *sqlrepo.Store
		closeDB func() error
	)
	switch cfg.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory job store, jobs are lost on restart")
		return repository.NewMemoryRepository(), noop, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DSN, postgres.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("db connect: %w", err)
		}
		closeDB = db.Close
		if store, err = sqlrepo.New(db); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		closeDB = db.Close
		if store, err = sqlrepo.New(db); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = closeDB()
		return nil, noop, err
	}
	logger.Info().Str("driver", cfg.Driver).Msg("job store ready")
	return store, closeDB, nil
}

// OpenBroker returns the configured broker. clientName identifies the
// process to the broker where the driver supports it.
func OpenBroker(cfg config.BrokerConfig, clientName string, logger zerolog.Logger) (broker.Broker, error) {
	switch cfg.Driver {
	case "memory":
		return broker.NewMemoryBroker(), nil
	case "kafka":
		return kafka.NewBroker(kafka.BrokerConfig{
			Brokers:           cfg.Kafka.Brokers,
			GroupPrefix:       cfg.Kafka.GroupPrefix,
			ReconnectInterval: cfg.Kafka.ReconnectInterval,
			Producer: kafka.ProducerConfig{
				MaxRetries:   cfg.Kafka.MaxRetries,
				WriteTimeout: cfg.Kafka.WriteTimeout,
			},
			Logger: logger,
		})
	case "nats":
		conn, err := natsq.NewConn(natsq.Config{
			URL:           cfg.NATS.URL,
			Name:          clientName,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return natsq.NewBroker(conn, logger)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

// Providers returns the capability set. Every generator is the mock; the
// composer is the mock or the manifest writer.
func Providers(cfg config.ProvidersConfig, logger zerolog.Logger) (ports.Set, error) {
	set := mock.New(logger)
	switch cfg.Composer {
	case "mock":
	case "manifest":
		c, err := manifest.NewComposer(cfg.ManifestDir, logger)
		if err != nil {
			return ports.Set{}, err
		}
		set.Composer = c
	default:
		return ports.Set{}, fmt.Errorf("unknown composer %q", cfg.Composer)
	}
	return set, nil
}

func Timeouts(cfg config.TimeoutsConfig) service.Timeouts {
	return service.Timeouts{
		News:    cfg.News,
		Script:  cfg.Script,
		Speech:  cfg.Speech,
		Avatar:  cfg.Avatar,
		Visual:  cfg.Visual,
		Compose: cfg.Compose,
	}
}

func RestartPolicy(cfg config.WorkersConfig) app.RestartPolicy {
	return app.RestartPolicy{Every: cfg.RestartEvery, Burst: cfg.RestartBurst}
}

// Workers builds the four stage workers.
func Workers(cfg config.WorkersConfig, b broker.Broker, store repository.JobStore, set ports.Set, logger zerolog.Logger) ([]*worker.Runner, error) {
	base := worker.Config{Broker: b, Store: store, Timeout: cfg.Timeout, Logger: logger}
	with := func(prefetch int) worker.Config {
		c := base
		c.Prefetch = prefetch
		return c
	}

	speech, err := worker.NewSpeechWorker(with(cfg.SpeechPrefetch), set.Speech)
	if err != nil {
		return nil, fmt.Errorf("speech worker: %w", err)
	}
	avatar, err := worker.NewAvatarWorker(with(cfg.AvatarPrefetch), set.Avatar)
	if err != nil {
		return nil, fmt.Errorf("avatar worker: %w", err)
	}
	visual, err := worker.NewVisualWorker(with(cfg.VisualPrefetch), set.Visual)
	if err != nil {
		return nil, fmt.Errorf("visual worker: %w", err)
	}
	composition, err := worker.NewCompositionWorker(with(cfg.CompositionPrefetch), set.Composer)
	if err != nil {
		return nil, fmt.Errorf("composition worker: %w", err)
	}
	return []*worker.Runner{speech, avatar, visual, composition}, nil
}

// RunWorkers supervises every runner until ctx is cancelled or one of them
// gives up.
func RunWorkers(ctx context.Context, runners []*worker.Runner, policy app.RestartPolicy, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			return app.Supervise(gctx, r.Name(), policy, logger, r.Run)
		})
	}
	return g.Wait()
}
