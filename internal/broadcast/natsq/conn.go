// Package natsq implements broker.Broker on NATS JetStream.
package natsq

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
)

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Logger        zerolog.Logger
}

// Conn holds the one connection shared by every publisher and subscription of
// the process. It is dialled on first use; reconnects are automatic, unlimited
// and spaced by ReconnectWait.
type Conn struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	nc     *nats.Conn
	js     nats.JetStreamContext
	closed bool
}

func NewConn(cfg Config) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.ReconnectWait < 0 {
		return nil, fmt.Errorf("reconnect wait cannot be negative, got: %v", cfg.ReconnectWait)
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 5 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "newsroom"
	}
	return &Conn{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "nats_conn").Logger(),
	}, nil
}

func (c *Conn) options() []nats.Option {
	return []nats.Option{
		nats.Name(c.cfg.Name),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.logger.Info().Msg("nats connection closed")
		}),
	}
}

// JetStream returns the shared JetStream context, connecting if needed.
func (c *Conn) JetStream() (nats.JetStreamContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, broker.ErrClosed
	}
	if c.nc != nil && !c.nc.IsClosed() {
		return c.js, nil
	}

	nc, err := nats.Connect(c.cfg.URL, c.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	c.nc, c.js = nc, js

	c.logger.Info().
		Str("url", nc.ConnectedUrl()).
		Dur("reconnect_wait", c.cfg.ReconnectWait).
		Msg("nats connected")
	return js, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.nc.Close()
			return fmt.Errorf("nats drain: %w", err)
		}
	}
	return nil
}
