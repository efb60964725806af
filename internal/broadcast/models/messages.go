package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	QueueTtsGeneration    = "tts-generation"
	QueueAvatarGeneration = "avatar-generation"
	QueueBRollGeneration  = "broll-generation"
	QueueVideoComposition = "video-composition"
	QueueStageResults     = "stage-results"
	QueueBroadcastStatus  = "broadcast-status"
)

// DeadLetterQueue returns the dead-letter queue name for queue.
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

type Stage string

const (
	StageNews        Stage = "news"
	StageScript      Stage = "script"
	StageSpeech      Stage = "speech"
	StageAvatar      Stage = "avatar"
	StageVisual      Stage = "visual"
	StageComposition Stage = "composition"
)

// Envelope holds the identifiers every stage message carries.
type Envelope struct {
	BroadcastID   uuid.UUID `json:"broadcast_id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	TaskID        uuid.UUID `json:"task_id"`
	// ReplyTo is the results queue of the orchestrator that issued the task.
	ReplyTo string `json:"reply_to,omitempty"`
}

// ResultQueue is where the outcome of the task is published.
func (e Envelope) ResultQueue() string {
	if e.ReplyTo == "" {
		return QueueStageResults
	}
	return e.ReplyTo
}

// ResultQueueFor names the results queue owned by one orchestrator instance.
// An empty instance shares the plain stage-results queue.
func ResultQueueFor(instance string) string {
	if instance == "" {
		return QueueStageResults
	}
	return QueueStageResults + "." + instance
}

func (e Envelope) Validate() error {
	if e.BroadcastID == uuid.Nil {
		return fmt.Errorf("%w: broadcast_id is required", ErrInvalidArgument)
	}
	return nil
}

type TtsGenerationMessage struct {
	Envelope
	SegmentNumber int         `json:"segment_number"`
	SectionType   SectionType `json:"section_type"`
	Text          string      `json:"text"`
	Tone          string      `json:"tone"`
}

type AvatarGenerationMessage struct {
	Envelope
	SegmentNumber int         `json:"segment_number"`
	SectionType   SectionType `json:"section_type"`
	AudioFilePath string      `json:"audio_file_path"`
	Tone          string      `json:"tone"`
}

type BRollGenerationMessage struct {
	Envelope
	SegmentNumber   int               `json:"segment_number"`
	SceneIndex      int               `json:"scene_index"`
	ContentType     VisualContentType `json:"content_type"`
	Description     string            `json:"description"`
	Prompt          string            `json:"prompt,omitempty"`
	SearchTerms     []string          `json:"search_terms,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
}

type VideoCompositionMessage struct {
	Envelope
}

// StageResult reports the outcome of one delegated task on the stage-results queue.
type StageResult struct {
	Envelope
	Stage           Stage       `json:"stage"`
	Section         SectionType `json:"section,omitempty"`
	SegmentNumber   int         `json:"segment_number"`
	SceneIndex      int         `json:"scene_index"`
	Error           string      `json:"error,omitempty"`
	Path            string      `json:"path,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	ContentHash     string      `json:"content_hash,omitempty"`
	IsVideo         bool        `json:"is_video,omitempty"`
	Attribution     string      `json:"attribution,omitempty"`
}

func (r StageResult) Failed() bool { return r.Error != "" }

// DecodeMessage unmarshals body into T and checks the envelope.
func DecodeMessage[T interface{ Validate() error }](body []byte) (T, error) {
	var msg T
	if len(body) == 0 {
		return msg, fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: decode: %v", ErrInvalidArgument, err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}
