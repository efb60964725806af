// Package config loads process configuration: defaults, then an optional
// YAML file named by NEWSROOM_CONFIG, then environment overrides. A .env file
// in the working directory is loaded into the environment first.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"

	"github.com/romariotrain/newsroom/internal/logging"
)

const FileEnv = "NEWSROOM_CONFIG"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   logging.Config  `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Broker    BrokerConfig    `yaml:"broker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Workers   WorkersConfig   `yaml:"workers"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver string `yaml:"driver"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
	// Path is the sqlite database file.
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type BrokerConfig struct {
	// Driver is memory, kafka or nats. The memory broker only connects
	// components inside one process.
	Driver string      `yaml:"driver"`
	Kafka  KafkaConfig `yaml:"kafka"`
	NATS   NATSConfig  `yaml:"nats"`
}

type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"`
	GroupPrefix       string        `yaml:"group_prefix"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type PipelineConfig struct {
	// Executor is local (every stage in-process) or queue (speech, avatar,
	// b-roll and composition go to workers over the broker).
	Executor         string        `yaml:"executor"`
	MaxParallelCalls int           `yaml:"max_parallel_calls"`
	StageWait        time.Duration `yaml:"stage_wait"`
	FinalizeTimeout  time.Duration `yaml:"finalize_timeout"`
	ResultPrefetch   int           `yaml:"result_prefetch"`
	// Instance gives this orchestrator its own results queue. Set a distinct
	// value on every API process when more than one runs in queue mode.
	Instance string         `yaml:"instance"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

type TimeoutsConfig struct {
	News    time.Duration `yaml:"news"`
	Script  time.Duration `yaml:"script"`
	Speech  time.Duration `yaml:"speech"`
	Avatar  time.Duration `yaml:"avatar"`
	Visual  time.Duration `yaml:"visual"`
	Compose time.Duration `yaml:"compose"`
}

type ProvidersConfig struct {
	News   string `yaml:"news"`
	Script string `yaml:"script"`
	Speech string `yaml:"speech"`
	Avatar string `yaml:"avatar"`
	Visual string `yaml:"visual"`
	// Composer is mock or manifest.
	Composer    string `yaml:"composer"`
	ManifestDir string `yaml:"manifest_dir"`
}

type WorkersConfig struct {
	// Embedded runs the stage workers inside the API process.
	Embedded            bool          `yaml:"embedded"`
	SpeechPrefetch      int           `yaml:"speech_prefetch"`
	AvatarPrefetch      int           `yaml:"avatar_prefetch"`
	VisualPrefetch      int           `yaml:"visual_prefetch"`
	CompositionPrefetch int           `yaml:"composition_prefetch"`
	Timeout             time.Duration `yaml:"timeout"`
	// RestartEvery paces restarts of a worker loop that exited with an error.
	RestartEvery time.Duration `yaml:"restart_every"`
	RestartBurst int           `yaml:"restart_burst"`
}

type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type WatchdogConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
	ScanLimit  int           `yaml:"scan_limit"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Store: StoreConfig{
			Driver:          "memory",
			Path:            "newsroom.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Broker: BrokerConfig{
			Driver: "memory",
			Kafka: KafkaConfig{
				Brokers:           []string{"localhost:9092"},
				GroupPrefix:       "newsroom-",
				ReconnectInterval: 2 * time.Second,
				MaxRetries:        3,
				WriteTimeout:      10 * time.Second,
			},
			NATS: NATSConfig{URL: "nats://localhost:4222", ReconnectWait: 5 * time.Second},
		},
		Pipeline: PipelineConfig{
			Executor:         "local",
			MaxParallelCalls: 8,
			StageWait:        10 * time.Minute,
			FinalizeTimeout:  5 * time.Second,
			ResultPrefetch:   16,
			Timeouts: TimeoutsConfig{
				News:    30 * time.Second,
				Script:  60 * time.Second,
				Speech:  60 * time.Second,
				Avatar:  3 * time.Minute,
				Visual:  60 * time.Second,
				Compose: 5 * time.Minute,
			},
		},
		Providers: ProvidersConfig{
			News:        "mock",
			Script:      "mock",
			Speech:      "mock",
			Avatar:      "mock",
			Visual:      "mock",
			Composer:    "mock",
			ManifestDir: "broadcasts",
		},
		Workers: WorkersConfig{
			SpeechPrefetch:      1,
			AvatarPrefetch:      1,
			VisualPrefetch:      2,
			CompositionPrefetch: 1,
			Timeout:             5 * time.Minute,
			RestartEvery:        5 * time.Second,
			RestartBurst:        3,
		},
		Outbox: OutboxConfig{Interval: time.Second, BatchSize: 100},
		Watchdog: WatchdogConfig{
			Enabled:    true,
			Schedule:   "@every 1m",
			StaleAfter: 30 * time.Minute,
			ScanLimit:  200,
		},
	}
}

// Load reads .env, the file named by NEWSROOM_CONFIG and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup(FileEnv); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := c.decode(data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Broker.Driver {
	case "memory":
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return fmt.Errorf("broker.kafka.brokers is required")
		}
	case "nats":
		if c.Broker.NATS.URL == "" {
			return fmt.Errorf("broker.nats.url is required")
		}
	default:
		return fmt.Errorf("unknown broker.driver %q", c.Broker.Driver)
	}

	switch c.Pipeline.Executor {
	case "local":
	case "queue":
		if c.Broker.Driver == "memory" && !c.Workers.Embedded {
			return fmt.Errorf("pipeline.executor queue with the memory broker requires workers.embedded")
		}
	default:
		return fmt.Errorf("unknown pipeline.executor %q", c.Pipeline.Executor)
	}
	if c.Pipeline.MaxParallelCalls < 0 {
		return fmt.Errorf("pipeline.max_parallel_calls must be >= 0, got: %d", c.Pipeline.MaxParallelCalls)
	}
	if c.Pipeline.StageWait <= 0 {
		return fmt.Errorf("pipeline.stage_wait must be positive, got: %v", c.Pipeline.StageWait)
	}
	t := c.Pipeline.Timeouts
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"news", t.News}, {"script", t.Script}, {"speech", t.Speech},
		{"avatar", t.Avatar}, {"visual", t.Visual}, {"compose", t.Compose},
	}
	for _, to := range timeouts {
		if to.d < 0 {
			return fmt.Errorf("pipeline.timeouts.%s must be >= 0, got: %v", to.name, to.d)
		}
	}

	p := c.Providers
	// для генераторов пока есть только mock
	generators := []struct{ name, value string }{
		{"news", p.News}, {"script", p.Script}, {"speech", p.Speech},
		{"avatar", p.Avatar}, {"visual", p.Visual},
	}
	for _, g := range generators {
		if g.value != "mock" {
			return fmt.Errorf("unknown providers.%s %q", g.name, g.value)
		}
	}
	switch p.Composer {
	case "mock":
	case "manifest":
		if p.ManifestDir == "" {
			return fmt.Errorf("providers.manifest_dir is required for the manifest composer")
		}
	default:
		return fmt.Errorf("unknown providers.composer %q", p.Composer)
	}

	w := c.Workers
	if w.SpeechPrefetch < 0 || w.AvatarPrefetch < 0 || w.VisualPrefetch < 0 || w.CompositionPrefetch < 0 {
		return fmt.Errorf("workers prefetch must be >= 0")
	}
	if w.RestartEvery <= 0 {
		return fmt.Errorf("workers.restart_every must be positive, got: %v", w.RestartEvery)
	}

	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox.interval must be positive, got: %v", c.Outbox.Interval)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive, got: %d", c.Outbox.BatchSize)
	}

	if c.Watchdog.Enabled {
		if c.Watchdog.StaleAfter <= 0 {
			return fmt.Errorf("watchdog.stale_after must be positive, got: %v", c.Watchdog.StaleAfter)
		}
		// задача стадии не обновляет job, пока ждёт: watchdog не должен убить её раньше таймаута
		longest, name := c.Pipeline.StageWait, "pipeline.stage_wait"
		for _, to := range timeouts {
			if to.d > longest {
				longest, name = to.d, "pipeline.timeouts."+to.name
			}
		}
		if c.Watchdog.StaleAfter <= longest {
			return fmt.Errorf("watchdog.stale_after (%v) must exceed %s (%v)", c.Watchdog.StaleAfter, name, longest)
		}
	}
	return nil
}
