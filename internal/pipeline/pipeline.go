// Package pipeline implements the staged proposal generation flow: context
// collection, issue structuring, reverse planning, action planning, draft
// copy, and the final checklist, streamed as typed progress events.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

// Defaults holds the generation parameters used when a stage config does
// not override them.
type Defaults struct {
	Model         string
	MaxTokens     int64
	Temperature   float64
	StreamTimeout time.Duration
}

// Request identifies one proposal generation run.
type Request struct {
	TenantID string
	UserID   string
	MinuteID string
}

// Pipeline orchestrates a run from config resolution through section
// assembly.
type Pipeline struct {
	resolver  *Resolver
	collector *Collector
	store     store.Store
	llm       anthropic.Client
	defaults  Defaults
	now       func() time.Time
}

// New creates a Pipeline.
func New(resolver *Resolver, collector *Collector, st store.Store, llm anthropic.Client, defaults Defaults) *Pipeline {
	if defaults.StreamTimeout <= 0 {
		defaults.StreamTimeout = 5 * time.Minute
	}
	return &Pipeline{
		resolver:  resolver,
		collector: collector,
		store:     st,
		llm:       llm,
		defaults:  defaults,
		now:       time.Now,
	}
}

// Stream executes the pipeline asynchronously and returns the event
// channel. The run detaches from the caller's cancellation: once started it
// executes to a terminal state and persists its record even if the consumer
// goes away, so the consumer must drain the channel. The channel is closed
// after the terminal event.
func (p *Pipeline) Stream(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		p.run(context.WithoutCancel(ctx), req, ch)
	}()
	return ch
}

// Generate executes the pipeline to completion and returns the final
// result. An error is returned only for pre-run failures; partial runs
// return their result.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	var errMsg, errCode string
	for ev := range p.Stream(ctx, req) {
		switch ev.Type {
		case EventResult:
			result = ev.Result
		case EventError:
			errMsg = ev.Message
			errCode, _ = ev.Data["code"].(string)
		}
	}
	if result == nil {
		switch errCode {
		case codeMinuteNotFound:
			return nil, ErrMinuteNotFound
		case codePermissionDenied:
			return nil, ErrPermissionDenied
		}
		if errMsg != "" {
			return nil, eris.New(errMsg)
		}
		return nil, eris.New("pipeline: no result produced")
	}
	return result, nil
}

// Machine-readable codes attached to error events so transports can map
// access failures to their own status vocabulary.
const (
	codeMinuteNotFound   = "minute_not_found"
	codePermissionDenied = "permission_denied"
)

func errorCode(err error) string {
	switch {
	case eris.Is(err, ErrMinuteNotFound):
		return codeMinuteNotFound
	case eris.Is(err, ErrPermissionDenied):
		return codePermissionDenied
	}
	return ""
}

func (p *Pipeline) run(ctx context.Context, req Request, ch chan<- Event) {
	start := p.now()
	log := zap.L().With(
		zap.String("tenant_id", req.TenantID),
		zap.String("minute_id", req.MinuteID),
	)

	cfg, source := p.resolver.Resolve(ctx, req.TenantID)
	log.Info("pipeline config resolved", zap.String("source", source), zap.Bool("default", cfg.IsDefault))

	if !cfg.IsEnabled() {
		ch <- Event{Type: EventError, Message: "パイプラインが無効です"}
		return
	}

	enabled := cfg.EnabledStages()
	ch <- Event{Type: EventPipelineStart, Data: map[string]any{
		"pipeline_name":  cfg.PipelineName,
		"total_stages":   len(enabled),
		"enabled_stages": enabled,
	}}

	if !cfg.StageFor(0).IsEnabled() {
		ch <- Event{Type: EventError, Message: "コンテキスト収集ステージは無効化できません"}
		return
	}

	stageResults := make(map[int]model.StageResult)

	// Stage 0. The only stage allowed to fail the whole run; it aborts
	// before any run record exists.
	ch <- stageEvent(EventStageStart, 0, StageName(cfg, 0))
	t0 := p.now()
	rctx, err := p.collector.Collect(ctx, cfg, req.TenantID, req.MinuteID)
	if err != nil {
		log.Error("context collection failed", zap.Error(err))
		ev := Event{Type: EventError, Message: err.Error()}
		if code := errorCode(err); code != "" {
			ev.Data = map[string]any{"code": code}
		}
		ch <- ev
		return
	}
	stage0Duration := p.now().Sub(t0).Milliseconds()
	stageResults[0] = model.StageResult{
		Stage:      0,
		Name:       StageName(cfg, 0),
		Status:     model.StageStatusCompleted,
		DurationMS: stage0Duration,
	}
	ch <- Event{Type: EventStageInfo, Stage: intPtr(0), Data: map[string]any{
		"company_name": rctx.Minute.CompanyName,
		"industry":     rctx.Minute.Industry,
	}}
	ev := stageEvent(EventStageChunk, 0, StageName(cfg, 0))
	ev.Chunk = FormatContextSummary(rctx)
	ch <- ev
	done := stageEvent(EventStageComplete, 0, StageName(cfg, 0))
	done.Data = map[string]any{"duration_ms": stage0Duration}
	ch <- done

	// The run record exists from stage 1 onward. Creation failure is
	// tolerated: generation proceeds, only persistence is lost.
	runID := ""
	if run, err := p.store.CreateRun(ctx, req.TenantID, req.UserID, req.MinuteID); err != nil {
		log.Error("run record creation failed", zap.Error(err))
	} else {
		runID = run.ID
	}

	outputs := make(map[int]map[string]any)
	var errStage *int
	errMessage := ""

	for _, def := range generationStages {
		name := StageName(cfg, def.num)
		sc := cfg.StageFor(def.num)
		if !sc.IsEnabled() {
			info := stageEvent(EventStageInfo, def.num, name)
			info.Data = map[string]any{"skipped": true}
			ch <- info
			stageResults[def.num] = skippedResult(def.num, name)
			continue
		}

		ch <- stageEvent(EventStageStart, def.num, name)
		t0 = p.now()
		doc, err := p.executeStage(ctx, def, rctx, cfg, outputs)
		duration := p.now().Sub(t0).Milliseconds()

		if err != nil {
			log.Error("stage failed", zap.Int("stage", def.num), zap.Error(err))
			stageResults[def.num] = model.StageResult{
				Stage:      def.num,
				Name:       name,
				Status:     model.StageStatusFailed,
				DurationMS: duration,
				Error:      err.Error(),
			}
			n := def.num
			errStage = &n
			errMessage = err.Error()
			failed := stageEvent(EventStageComplete, def.num, name)
			failed.Data = map[string]any{"duration_ms": duration, "error": err.Error()}
			ch <- failed
			// Later stages depend on this one; stop and keep what exists.
			break
		}

		outputs[def.num] = doc
		stageResults[def.num] = model.StageResult{
			Stage:      def.num,
			Name:       name,
			Status:     model.StageStatusCompleted,
			Output:     doc,
			DurationMS: duration,
		}
		chunk := stageEvent(EventStageChunk, def.num, name)
		chunk.Chunk = FormatStageOutput(def.num, doc)
		ch <- chunk
		completed := stageEvent(EventStageComplete, def.num, name)
		completed.Data = map[string]any{"duration_ms": duration}
		ch <- completed
	}

	sections := BuildSections(cfg, outputs)
	totalDuration := p.now().Sub(start).Milliseconds()

	status := model.RunStatusCompleted
	for _, sr := range stageResults {
		if sr.Status != model.StageStatusCompleted && sr.Status != model.StageStatusSkipped {
			status = model.RunStatusPartial
			break
		}
	}

	if runID != "" {
		fin := store.RunCompletion{
			Status:          status,
			StageResults:    stageResults,
			Sections:        sections,
			TotalDurationMS: totalDuration,
			ErrorStage:      errStage,
			ErrorMessage:    errMessage,
		}
		if err := p.store.FinishRun(ctx, runID, fin); err != nil {
			log.Error("run record update failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	ch <- Event{Type: EventPipelineComplete, Data: map[string]any{
		"total_duration_ms": totalDuration,
		"status":            status,
	}}

	summaries := make(map[int]model.StageResult, len(stageResults))
	for k, v := range stageResults {
		summaries[k] = v.Stripped()
	}
	ch <- Event{Type: EventResult, Result: &Result{
		RunID:           runID,
		PipelineName:    cfg.PipelineName,
		Status:          status,
		Stages:          summaries,
		Sections:        sections,
		ContextSummary:  FormatContextSummary(rctx),
		TotalDurationMS: totalDuration,
	}}
}

// executeStage runs one generation stage: stage-scoped knowledge fan-out,
// prompt assembly, the model call, parsing, and stage-specific validation.
func (p *Pipeline) executeStage(ctx context.Context, def stageDef, rctx *RunContext, cfg *Config, outputs map[int]map[string]any) (map[string]any, error) {
	if err := p.collector.SearchKnowledge(ctx, rctx, cfg, def.num); err != nil {
		return nil, eris.Wrapf(err, "pipeline: stage %d knowledge search", def.num)
	}

	sc := cfg.StageFor(def.num)
	prompt := def.buildPrompt(rctx, cfg, outputs)
	if sc.PromptOverride != "" {
		prompt = sc.PromptOverride
	}

	modelID := sc.Model
	if modelID == "" {
		modelID = p.defaults.Model
	}
	maxTokens := sc.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.defaults.MaxTokens
	}
	temperature := p.defaults.Temperature
	if sc.Temperature != nil {
		temperature = *sc.Temperature
	}

	callCtx, cancel := context.WithTimeout(ctx, p.defaults.StreamTimeout)
	defer cancel()

	resp, err := p.llm.StreamMessage(callCtx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(prompt),
		Messages:    []anthropic.Message{{Role: "user", Content: userInstruction}},
		Temperature: &temperature,
	}, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: stage %d generation", def.num)
	}
	resp.Usage.LogCost(modelID, "stage_"+strconv.Itoa(def.num))

	doc := ParseResponse(resp.Text())
	if def.post != nil {
		doc = def.post(doc, rctx)
	}
	return doc, nil
}

func intPtr(n int) *int { return &n }
