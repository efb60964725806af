package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type envVar struct {
	name string
	set  func(c *Config, raw string) error
}

// envVars are applied in order after the file; the last one set wins.
var envVars = []envVar{
	{"NEWSROOM_HTTP_ADDR", str(func(c *Config) *string { return &c.HTTP.Addr })},
	{"NEWSROOM_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"NEWSROOM_LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},

	{"NEWSROOM_STORE_DRIVER", str(func(c *Config) *string { return &c.Store.Driver })},
	{"DATABASE_URL", str(func(c *Config) *string { return &c.Store.DSN })},
	{"NEWSROOM_SQLITE_PATH", str(func(c *Config) *string { return &c.Store.Path })},

	{"NEWSROOM_BROKER_DRIVER", str(func(c *Config) *string { return &c.Broker.Driver })},
	{"KAFKA_BROKERS", list(func(c *Config) *[]string { return &c.Broker.Kafka.Brokers })},
	{"NATS_URL", str(func(c *Config) *string { return &c.Broker.NATS.URL })},

	{"NEWSROOM_EXECUTOR", str(func(c *Config) *string { return &c.Pipeline.Executor })},
	{"NEWSROOM_MAX_PARALLEL_CALLS", integer(func(c *Config) *int { return &c.Pipeline.MaxParallelCalls })},
	{"NEWSROOM_STAGE_WAIT", duration(func(c *Config) *time.Duration { return &c.Pipeline.StageWait })},
	{"NEWSROOM_INSTANCE_ID", str(func(c *Config) *string { return &c.Pipeline.Instance })},

	{"NEWSROOM_COMPOSER", str(func(c *Config) *string { return &c.Providers.Composer })},
	{"NEWSROOM_MANIFEST_DIR", str(func(c *Config) *string { return &c.Providers.ManifestDir })},

	{"NEWSROOM_EMBED_WORKERS", boolean(func(c *Config) *bool { return &c.Workers.Embedded })},
	{"NEWSROOM_WORKER_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Workers.Timeout })},

	{"NEWSROOM_WATCHDOG_ENABLED", boolean(func(c *Config) *bool { return &c.Watchdog.Enabled })},
	{"NEWSROOM_WATCHDOG_STALE_AFTER", duration(func(c *Config) *time.Duration { return &c.Watchdog.StaleAfter })},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, v := range envVars {
		raw, ok := lookup(v.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := v.set(c, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}
	return nil
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*field(c) = out
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		*field(c) = n
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, raw string) error {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*field(c) = d
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, raw string) error {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool %q", raw)
		}
		*field(c) = b
		return nil
	}
}
