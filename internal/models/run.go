package models

import "time"

type PollOutcome string

const (
	PollConfident PollOutcome = "confident"
	PollPaused    PollOutcome = "paused"
	PollError     PollOutcome = "error"
)

// Stop reasons written to the run journal.
const (
	StopOperator = "operator"
	StopShutdown = "shutdown"
)

type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// RunSummary is a run together with the counts of what happened during it.
type RunSummary struct {
	Run
	Polls   int `json:"polls"`
	Pauses  int `json:"pauses"`
	Errors  int `json:"errors"`
	Reviews int `json:"reviews"`
}

type PollRecord struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	ImageName  string      `json:"image_name"`
	ResultID   string      `json:"result_id"`
	Outcome    PollOutcome `json:"outcome"`
	Error      string      `json:"error,omitempty"`
	At         time.Time   `json:"at"`
}

type ReviewRecord struct {
	ID                string    `json:"id"`
	RunID             string    `json:"run_id"`
	ResultID          string    `json:"result_id"`
	SystemLabel       string    `json:"system_label"`
	TrueClass         string    `json:"true_class"`
	CopiedForTraining bool      `json:"copied_for_training"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`
}
