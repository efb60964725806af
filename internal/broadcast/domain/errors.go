package domain

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrProgressRegressed = errors.New("progress regressed")
)
