package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

// BroadcastStatusChanged is recorded in the outbox every time a job is persisted
// with a new status.
type BroadcastStatusChanged struct {
	eventID       uuid.UUID
	broadcastID   uuid.UUID
	correlationID uuid.UUID
	from          domain.Status
	to            domain.Status
	progress      int
	message       string
	errorMessage  string
	outputPath    string
	occurredAt    time.Time
}

func NewBroadcastStatusChanged(from domain.Status, job *Job) *BroadcastStatusChanged {
	return &BroadcastStatusChanged{
		eventID:       uuid.New(),
		broadcastID:   job.ID,
		correlationID: job.CorrelationID,
		from:          from,
		to:            job.Status,
		progress:      job.ProgressPercent,
		message:       job.StatusMessage,
		errorMessage:  job.ErrorMessage,
		outputPath:    job.OutputVideoPath,
		occurredAt:    job.UpdatedAt,
	}
}

func (e *BroadcastStatusChanged) EventID() uuid.UUID     { return e.eventID }
func (e *BroadcastStatusChanged) EventType() string      { return "BroadcastStatusChanged" }
func (e *BroadcastStatusChanged) AggregateID() uuid.UUID { return e.broadcastID }
func (e *BroadcastStatusChanged) OccurredAt() time.Time  { return e.occurredAt }

func (e *BroadcastStatusChanged) From() domain.Status { return e.from }
func (e *BroadcastStatusChanged) To() domain.Status   { return e.to }

func (e *BroadcastStatusChanged) Message() BroadcastStatusMessage {
	return BroadcastStatusMessage{
		EventID:         e.eventID,
		BroadcastID:     e.broadcastID,
		CorrelationID:   e.correlationID,
		From:            e.from,
		Status:          e.to,
		ProgressPercent: e.progress,
		StatusMessage:   e.message,
		ErrorMessage:    e.errorMessage,
		OutputVideoPath: e.outputPath,
		OccurredAt:      e.occurredAt,
	}
}

func (e *BroadcastStatusChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message())
}

// BroadcastStatusMessage is the wire form published on the broadcast-status queue.
type BroadcastStatusMessage struct {
	EventID         uuid.UUID     `json:"event_id"`
	BroadcastID     uuid.UUID     `json:"broadcast_id"`
	CorrelationID   uuid.UUID     `json:"correlation_id"`
	From            domain.Status `json:"from"`
	Status          domain.Status `json:"status"`
	ProgressPercent int           `json:"progress_percent"`
	StatusMessage   string        `json:"status_message"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	OutputVideoPath string        `json:"output_video_path,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

// OutboxRecord is a persisted, not yet published event.
type OutboxRecord struct {
	ID          int64           `db:"id"`
	EventID     string          `db:"event_id"`
	EventType   string          `db:"event_type"`
	AggregateID string          `db:"aggregate_id"`
	Payload     json.RawMessage `db:"payload"`
	OccurredAt  time.Time       `db:"occurred_at"`
}

func NewOutboxRecord(event DomainEvent) (OutboxRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxRecord{}, err
	}
	return OutboxRecord{
		EventID:     event.EventID().String(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID().String(),
		Payload:     payload,
		OccurredAt:  event.OccurredAt(),
	}, nil
}
