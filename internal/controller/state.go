package controller

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of the classification run loop.
type State int

const (
	Idle State = iota
	Running
	PausedForReview
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case PausedForReview:
		return "paused_for_review"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrAlreadyRunning  = errors.New("classification run already active")
	ErrNotPaused       = errors.New("no prediction is waiting for review")
	ErrNoClassSelected = errors.New("select a classification before saving")
	ErrUnknownClass    = errors.New("unknown classification")
	ErrSaveInProgress  = errors.New("a manual classification is already being saved")
	ErrNoResultID      = errors.New("prediction has no stored result id")
)
