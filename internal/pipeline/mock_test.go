package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/refdata"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
	"github.com/sells-group/proposal-cli/pkg/knowledge"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, tenantID, userID, minuteID string) (*model.Run, error) {
	args := m.Called(ctx, tenantID, userID, minuteID)
	if run := args.Get(0); run != nil {
		return run.(*model.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) FinishRun(ctx context.Context, runID string, fin store.RunCompletion) error {
	return m.Called(ctx, runID, fin).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if run := args.Get(0); run != nil {
		return run.(*model.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if runs := args.Get(0); runs != nil {
		return runs.([]model.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetMinute(ctx context.Context, minuteID string) (*model.Minute, error) {
	args := m.Called(ctx, minuteID)
	if minute := args.Get(0); minute != nil {
		return minute.(*model.Minute), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockKnowledge struct {
	mock.Mock
}

func (m *mockKnowledge) Search(ctx context.Context, req knowledge.SearchRequest) ([]knowledge.Chunk, error) {
	args := m.Called(ctx, req)
	if chunks := args.Get(0); chunks != nil {
		return chunks.([]knowledge.Chunk), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) FetchPipelineConfig(ctx context.Context, tenantID string) (json.RawMessage, error) {
	args := m.Called(ctx, tenantID)
	if raw := args.Get(0); raw != nil {
		return raw.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRefdata struct {
	mock.Mock
}

func (m *mockRefdata) Pricing(ctx context.Context, area string) ([]model.MediaPricing, error) {
	args := m.Called(ctx, area)
	if v := args.Get(0); v != nil {
		return v.([]model.MediaPricing), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) SimulationParams(ctx context.Context, area, industry string) ([]model.SimulationParam, error) {
	args := m.Called(ctx, area, industry)
	if v := args.Get(0); v != nil {
		return v.([]model.SimulationParam), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) Wages(ctx context.Context, area, industry string) ([]model.WageData, error) {
	args := m.Called(ctx, area, industry)
	if v := args.Get(0); v != nil {
		return v.([]model.WageData), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) Publications(ctx context.Context, industry string) ([]model.PublicationRecord, error) {
	args := m.Called(ctx, industry)
	if v := args.Get(0); v != nil {
		return v.([]model.PublicationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) Campaigns(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]model.Campaign), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) SeasonalTrend(ctx context.Context, area, industry string) (*model.SeasonalTrend, error) {
	args := m.Called(ctx, area, industry)
	if v := args.Get(0); v != nil {
		return v.(*model.SeasonalTrend), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefdata) DocumentLinks(ctx context.Context) ([]model.DocumentLink, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]model.DocumentLink), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLLM) StreamMessage(ctx context.Context, req anthropic.MessageRequest, onText func(string)) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		r := resp.(*anthropic.MessageResponse)
		if onText != nil {
			onText(r.Text())
		}
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// textResponse builds a single-text-block model response.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

// Interface compliance.
var (
	_ store.Store      = (*mockStore)(nil)
	_ knowledge.Client = (*mockKnowledge)(nil)
	_ refdata.Source   = (*mockRefdata)(nil)
	_ anthropic.Client = (*mockLLM)(nil)
)
