package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

const (
	stage1JSON = `{"issues": [{"id": "I-1", "title": "応募数不足", "category": "採用課題", "detail": "月2件", "evidence": "議事録本文"}]}`
	stage2JSON = `{"proposals": [{"issue_id": "I-1", "media_name": "バイトル"}], "agenda_items": ["予算確認"]}`
	stage3JSON = `{"action_plan": [{"id": "A-1", "title": "料金表の準備", "priority": "high"}]}`
	stage4JSON = `{"catchcopy_proposals": [{"copy": "駅チカで働こう", "concept": "立地訴求"}]}`
	stage5JSON = `{"checklist": [{"id": "C-1", "category": "予算", "item": "上限確認"}], "summary": {"overview": "採用難が核心。"}}`
)

type pipelineFixture struct {
	st  *mockStore
	kb  *mockKnowledge
	rd  *mockRefdata
	llm *mockLLM
	p   *Pipeline
}

func newPipelineFixture(t *testing.T, cfg *Config) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		st:  &mockStore{},
		kb:  &mockKnowledge{},
		rd:  &mockRefdata{},
		llm: &mockLLM{},
	}
	stubRefdata(f.rd)

	cache := NewConfigCache(time.Minute)
	cache.Put("tenant-1", cfg)
	resolver := NewResolver(&mockAdmin{}, cache)
	collector := NewCollector(f.st, f.kb, f.rd, superTenant, 10, 5)

	f.p = New(resolver, collector, f.st, f.llm, Defaults{
		Model:         "claude-sonnet-4-5-20250929",
		MaxTokens:     8192,
		Temperature:   0.3,
		StreamTimeout: time.Minute,
	})
	return f
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func finalResult(t *testing.T, events []Event) *Result {
	t.Helper()
	results := eventsOfType(events, EventResult)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Result)
	return results[0].Result
}

func TestPipeline_FullRunCompleted(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())

	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, "tenant-1", "user-1", "minute-1").
		Return(&model.Run{ID: "run-1", Status: model.RunStatusRunning}, nil)

	var fin store.RunCompletion
	f.st.On("FinishRun", mock.Anything, "run-1", mock.Anything).
		Run(func(args mock.Arguments) { fin = args.Get(2).(store.RunCompletion) }).
		Return(nil)

	for _, body := range []string{stage1JSON, stage2JSON, stage3JSON, stage4JSON, stage5JSON} {
		f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(textResponse(body), nil).Once()
	}

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	require.NotEmpty(t, events)
	assert.Equal(t, EventPipelineStart, events[0].Type)
	assert.Len(t, eventsOfType(events, EventStageStart), 6)
	assert.Len(t, eventsOfType(events, EventStageComplete), 6)
	assert.Empty(t, eventsOfType(events, EventError))

	completes := eventsOfType(events, EventPipelineComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, model.RunStatusCompleted, completes[0].Data["status"])

	result := finalResult(t, events)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "次回商談提案書", result.PipelineName)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
	require.Contains(t, result.Stages, 1)
	// The result event carries summaries only, payloads stay internal.
	assert.Nil(t, result.Stages[1].Output)
	assert.NotEmpty(t, result.Sections)

	assert.Equal(t, model.RunStatusCompleted, fin.Status)
	assert.Nil(t, fin.ErrorStage)
	f.st.AssertExpectations(t)
	f.llm.AssertExpectations(t)
}

func TestPipeline_StageFailureYieldsPartial(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())

	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Run{ID: "run-1"}, nil)

	var fin store.RunCompletion
	f.st.On("FinishRun", mock.Anything, "run-1", mock.Anything).
		Run(func(args mock.Arguments) { fin = args.Get(2).(store.RunCompletion) }).
		Return(nil)

	f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(textResponse(stage1JSON), nil).Once()
	f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(nil, eris.New("model overloaded")).Once()

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	result := finalResult(t, events)
	assert.Equal(t, model.RunStatusPartial, result.Status)
	assert.Equal(t, model.StageStatusCompleted, result.Stages[1].Status)
	assert.Equal(t, model.StageStatusFailed, result.Stages[2].Status)
	// Stages after the failure are never attempted.
	assert.NotContains(t, result.Stages, 3)
	assert.NotContains(t, result.Stages, 4)
	assert.NotContains(t, result.Stages, 5)

	require.NotNil(t, fin.ErrorStage)
	assert.Equal(t, 2, *fin.ErrorStage)
	assert.Contains(t, fin.ErrorMessage, "model overloaded")
	assert.Equal(t, model.RunStatusPartial, fin.Status)

	// Sections: stage 1 content exists, later stages render placeholders.
	var issuesHasData, planHasData bool
	for _, s := range result.Sections {
		switch s.Key {
		case "issues":
			issuesHasData = s.HasData
		case "action_plan":
			planHasData = s.HasData
			assert.Equal(t, noDataPlaceholder, s.Content)
		}
	}
	assert.True(t, issuesHasData)
	assert.False(t, planHasData)
	f.llm.AssertNumberOfCalls(t, "StreamMessage", 2)
}

func TestPipeline_DisabledStageSkipped(t *testing.T) {
	cfg := DefaultConfig()
	off := false
	cfg.Stages["stage_3"] = StageConfig{Enabled: &off, Name: "アクションプラン詳細化"}

	f := newPipelineFixture(t, cfg)
	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Run{ID: "run-1"}, nil)
	f.st.On("FinishRun", mock.Anything, "run-1", mock.Anything).Return(nil)

	for _, body := range []string{stage1JSON, stage2JSON, stage4JSON, stage5JSON} {
		f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(textResponse(body), nil).Once()
	}

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	result := finalResult(t, events)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
	assert.Equal(t, model.StageStatusSkipped, result.Stages[3].Status)
	assert.Equal(t, model.StageStatusCompleted, result.Stages[4].Status)
	f.llm.AssertNumberOfCalls(t, "StreamMessage", 4)

	for _, s := range result.Sections {
		if s.Key == "action_plan" {
			assert.Equal(t, noDataPlaceholder, s.Content)
			assert.False(t, s.HasData)
		}
	}
}

func TestPipeline_MinuteNotFoundAbortsBeforeRunRecord(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())
	f.st.On("GetMinute", mock.Anything, "missing").Return(nil, nil)

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "missing"}))

	errs := eventsOfType(events, EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "minute not found")
	assert.Empty(t, eventsOfType(events, EventResult))
	f.st.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.st.AssertNotCalled(t, "FinishRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_DisabledConfigEmitsError(t *testing.T) {
	cfg := DefaultConfig()
	off := false
	cfg.Enabled = &off

	f := newPipelineFixture(t, cfg)
	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "パイプラインが無効です", events[0].Message)
}

func TestPipeline_RunRecordFailureTolerated(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())

	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("database unavailable"))

	for _, body := range []string{stage1JSON, stage2JSON, stage3JSON, stage4JSON, stage5JSON} {
		f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(textResponse(body), nil).Once()
	}

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	result := finalResult(t, events)
	assert.Empty(t, result.RunID)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
	f.st.AssertNotCalled(t, "FinishRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_PromptOverrideUsedVerbatim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stages["stage_1"] = StageConfig{PromptOverride: "カスタムプロンプト"}
	off := false
	for _, key := range []string{"stage_2", "stage_3", "stage_4", "stage_5"} {
		cfg.Stages[key] = StageConfig{Enabled: &off}
	}

	f := newPipelineFixture(t, cfg)
	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Run{ID: "run-1"}, nil)
	f.st.On("FinishRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.llm.On("StreamMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && req.System[0].Text == "カスタムプロンプト"
	})).Return(textResponse(stage1JSON), nil).Once()

	events := drain(f.p.Stream(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"}))

	assert.NotEmpty(t, eventsOfType(events, EventResult))
	f.llm.AssertExpectations(t)
}

func TestGenerate_ReturnsResult(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())

	f.st.On("GetMinute", mock.Anything, "minute-1").Return(testMinute(), nil)
	f.st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Run{ID: "run-1"}, nil)
	f.st.On("FinishRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for _, body := range []string{stage1JSON, stage2JSON, stage3JSON, stage4JSON, stage5JSON} {
		f.llm.On("StreamMessage", mock.Anything, mock.Anything).Return(textResponse(body), nil).Once()
	}

	result, err := f.p.Generate(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "minute-1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
}

func TestGenerate_ErrorEventBecomesError(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig())
	f.st.On("GetMinute", mock.Anything, "missing").Return(nil, nil)

	_, err := f.p.Generate(context.Background(), Request{TenantID: "tenant-1", UserID: "user-1", MinuteID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minute not found")
}
