package models

import "time"

// RunState mirrors the lifecycle of one pipeline execution.
type RunState string

const (
	RunStateRunning RunState = "running"
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
	RunStateSkipped RunState = "skipped"
)

type RunRecord struct {
	ID         string     `json:"id"`
	City       string     `json:"city"`
	State      RunState   `json:"state"`
	Raining    *bool      `json:"raining,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LinkArtifact is a URL attached to a run for later inspection.
type LinkArtifact struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}
