package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
)

// Job is a broadcast job, the aggregate root of the pipeline.
//
// All mutation goes through Advance, AttachScript, Complete and Fail so the
// state machine and the progress invariant are enforced in one place.
type Job struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	CorrelationID   uuid.UUID     `db:"correlation_id" json:"correlation_id"`
	Status          domain.Status `db:"status" json:"status"`
	StatusMessage   string        `db:"status_message" json:"status_message"`
	ProgressPercent int           `db:"progress_percent" json:"progress_percent"`
	Request         Request       `db:"-" json:"request"`
	Script          *Script       `db:"-" json:"script,omitempty"`
	OutputVideoPath string        `db:"output_video_path" json:"output_video_path,omitempty"`
	ErrorMessage    string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	Version         int64         `db:"version" json:"version"`
}

func NewJob(id, correlationID uuid.UUID, req Request, now time.Time) *Job {
	return &Job{
		ID:            id,
		CorrelationID: correlationID,
		Status:        domain.Pending,
		StatusMessage: domain.Message(domain.Pending),
		Request:       req.clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Advance moves the job to the next pipeline state and its progress checkpoint.
func (j *Job) Advance(to domain.Status, now time.Time) error {
	if to == domain.Failed || to == domain.Completed {
		return fmt.Errorf("%w: use Fail/Complete for %s", domain.ErrInvalidTransition, to)
	}
	if err := domain.ValidateTransition(j.Status, to); err != nil {
		return err
	}
	progress := domain.Progress(to)
	if progress < j.ProgressPercent {
		return fmt.Errorf("%w: %d -> %d", domain.ErrProgressRegressed, j.ProgressPercent, progress)
	}
	j.Status = to
	j.StatusMessage = domain.Message(to)
	j.ProgressPercent = progress
	j.UpdatedAt = now
	return nil
}

// AttachScript stores a copy of the generated script, stamped with the job id,
// on a job that is still running.
func (j *Job) AttachScript(s *Script, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, j.Status)
	}
	if s == nil {
		return fmt.Errorf("%w: nil script", ErrInvalidArgument)
	}
	j.Script = s.Clone()
	j.Script.BroadcastID = j.ID.String()
	j.UpdatedAt = now
	return nil
}

func (j *Job) Complete(outputPath string, now time.Time) error {
	if err := domain.ValidateTransition(j.Status, domain.Completed); err != nil {
		return err
	}
	if outputPath == "" {
		return fmt.Errorf("%w: empty output path", ErrInvalidArgument)
	}
	j.Status = domain.Completed
	j.StatusMessage = domain.Message(domain.Completed)
	j.ProgressPercent = domain.Progress(domain.Completed)
	j.OutputVideoPath = outputPath
	j.UpdatedAt = now
	done := now
	j.CompletedAt = &done
	return nil
}

// Fail records reason and makes the job terminal. Progress is left as-is.
func (j *Job) Fail(reason string, now time.Time) error {
	if err := domain.ValidateTransition(j.Status, domain.Failed); err != nil {
		return err
	}
	if reason == "" {
		reason = "unknown error"
	}
	j.Status = domain.Failed
	j.StatusMessage = domain.Message(domain.Failed)
	j.ErrorMessage = reason
	j.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so stored jobs cannot be mutated through shared pointers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Request = j.Request.clone()
	cp.Script = j.Script.Clone()
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
