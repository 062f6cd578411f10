package pipeline

import "github.com/sells-group/proposal-cli/internal/model"

// EventType identifies a progress event emitted during a run.
type EventType string

const (
	EventPipelineStart    EventType = "pipeline_start"
	EventStageStart       EventType = "stage_start"
	EventStageInfo        EventType = "stage_info"
	EventStageChunk       EventType = "stage_chunk"
	EventStageComplete    EventType = "stage_complete"
	EventPipelineComplete EventType = "pipeline_complete"
	EventResult           EventType = "result"
	EventError            EventType = "error"
)

// Event is a typed progress notification. Transport encoding (SSE framing,
// JSON lines) is owned by the consumer, not the pipeline.
type Event struct {
	Type      EventType         `json:"type"`
	Stage     *int              `json:"stage,omitempty"`
	StageName string            `json:"stage_name,omitempty"`
	Status    model.StageStatus `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
	Chunk     string            `json:"chunk,omitempty"`
	Data      map[string]any    `json:"data,omitempty"`
	Result    *Result           `json:"result,omitempty"`
}

// Result is the final payload of a run, delivered in the result event and
// returned by Generate.
type Result struct {
	RunID           string                    `json:"run_id,omitempty"`
	PipelineName    string                    `json:"pipeline_name"`
	Status          model.RunStatus           `json:"status"`
	Stages          map[int]model.StageResult `json:"stages"`
	Sections        []model.Section           `json:"sections"`
	ContextSummary  string                    `json:"context_summary,omitempty"`
	TotalDurationMS int64                     `json:"total_duration_ms"`
}

func stageEvent(typ EventType, stage int, name string) Event {
	s := stage
	return Event{Type: typ, Stage: &s, StageName: name}
}
