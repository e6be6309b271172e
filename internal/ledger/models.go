package ledger

import "time"

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

type StepStatus string

const (
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusFailed   StepStatus = "failed"
	StepStatusSkipped  StepStatus = "skipped"
)

// Run is one pipeline execution.
type Run struct {
	ID          int64
	Pipeline    string
	ConfigPath  string
	Status      RunStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StepExecution is one node of a run.
type StepExecution struct {
	ID          int64
	RunID       int64
	Node        string
	Step        string
	StepType    string
	Status      StepStatus
	Command     []string
	ExitCode    *int
	PID         *int
	Outputs     map[string]any
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}
