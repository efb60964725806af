// Package statusfeed fans broadcast status events out to per-job subscribers.
package statusfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/broker"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

const defaultBuffer = 8

// Hub delivers status messages to subscribers grouped by job id.
//
// Publish never blocks: when a subscriber's buffer is full its oldest
// pending message is discarded, so the latest status always gets through.
type Hub struct {
	broker broker.Broker
	logger zerolog.Logger

	mu     sync.RWMutex
	groups map[uuid.UUID]map[uint64]chan models.BroadcastStatusMessage
	seq    uint64
}

func NewHub(b broker.Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		broker: b,
		logger: logger.With().Str("component", "status_feed").Logger(),
		groups: make(map[uuid.UUID]map[uint64]chan models.BroadcastStatusMessage),
	}
}

// Subscribe registers for updates of one job. The channel is closed by unsubscribe.
func (h *Hub) Subscribe(jobID uuid.UUID, buffer int) (<-chan models.BroadcastStatusMessage, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan models.BroadcastStatusMessage, buffer)

	h.mu.Lock()
	h.seq++
	id := h.seq
	group, ok := h.groups[jobID]
	if !ok {
		group = make(map[uint64]chan models.BroadcastStatusMessage)
		h.groups[jobID] = group
	}
	group[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if group, ok := h.groups[jobID]; ok {
				delete(group, id)
				if len(group) == 0 {
					delete(h.groups, jobID)
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[jobID])
}

func (h *Hub) Publish(msg models.BroadcastStatusMessage) {
	// отправка под RLock: unsubscribe закрывает канал только под Lock
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.groups[msg.BroadcastID] {
		for {
			select {
			case ch <- msg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Run consumes the broadcast-status queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.broker.Subscribe(ctx, models.QueueBroadcastStatus, 16)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", models.QueueBroadcastStatus, err)
	}
	defer sub.Close()

	h.logger.Info().Msg("status feed started")
	for {
		d, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				h.logger.Info().Msg("status feed stopped")
				return nil
			}
			return fmt.Errorf("next status: %w", err)
		}

		var msg models.BroadcastStatusMessage
		if err := json.Unmarshal(d.Body, &msg); err != nil || msg.BroadcastID == uuid.Nil {
			h.logger.Warn().Err(err).Msg("dropping undecodable status message")
		} else {
			h.logger.Debug().
				Str("broadcast_id", msg.BroadcastID.String()).
				Str("status", msg.Status.String()).
				Msg("status update")
			h.Publish(msg)
		}
		if err := d.Ack(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to ack status message")
		}
	}
}
