package service

import (
	"errors"
	"fmt"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
)

var (
	ErrShuttingDown = errors.New("service is shutting down")
	ErrEmptyScript  = errors.New("script has no segments")
)

// StageError tags a pipeline failure with the stage it happened in.
type StageError struct {
	Stage domain.Status
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage domain.Status, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
