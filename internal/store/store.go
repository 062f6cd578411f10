package store

import (
	"context"

	"github.com/sells-group/proposal-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	TenantID string          `json:"tenant_id,omitempty"`
	MinuteID string          `json:"minute_id,omitempty"`
	Status   model.RunStatus `json:"status,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// RunCompletion carries the terminal state written when a run finishes.
// Stage outputs are stripped before persistence; only stage metadata,
// durations, and the rendered sections are stored.
type RunCompletion struct {
	Status          model.RunStatus
	StageResults    map[int]model.StageResult
	Sections        []model.Section
	TotalDurationMS int64
	ErrorStage      *int
	ErrorMessage    string
}

// Store defines the persistence interface for the proposal pipeline.
// GetRun and GetMinute return (nil, nil) when the row does not exist.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, tenantID, userID, minuteID string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, fin RunCompletion) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Minutes
	GetMinute(ctx context.Context, minuteID string) (*model.Minute, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// stripOutputs returns a copy of the stage result map with output payloads
// removed.
func stripOutputs(results map[int]model.StageResult) map[int]model.StageResult {
	if results == nil {
		return nil
	}
	out := make(map[int]model.StageResult, len(results))
	for k, v := range results {
		out[k] = v.Stripped()
	}
	return out
}
