package model

import "time"

// RunStatus is the terminal state of a proposal pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// StageStatus is the per-stage execution outcome.
type StageStatus string

const (
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusFailed    StageStatus = "failed"
)

// StageResult records the outcome of a single pipeline stage. Output holds
// the parsed stage document while the run is in flight; the store strips it
// before persisting so run rows stay small.
type StageResult struct {
	Stage      int            `json:"stage"`
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Stripped returns a copy of the result without the stage output payload.
func (r StageResult) Stripped() StageResult {
	r.Output = nil
	return r
}

// Section is one rendered block of the final proposal document.
type Section struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Stage   int    `json:"stage"`
	Content string `json:"content"`
	HasData bool   `json:"has_data"`
}

// Run is the persisted record of a proposal pipeline execution.
type Run struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenant_id"`
	UserID          string              `json:"user_id"`
	MinuteID        string              `json:"minute_id"`
	Status          RunStatus           `json:"status"`
	StageResults    map[int]StageResult `json:"stage_results,omitempty"`
	Sections        []Section           `json:"sections,omitempty"`
	TotalDurationMS int64               `json:"total_duration_ms"`
	ErrorStage      *int                `json:"error_stage,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
