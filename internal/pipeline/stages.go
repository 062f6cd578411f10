package pipeline

import (
	"encoding/json"
	"strconv"

	"github.com/sells-group/proposal-cli/internal/model"
)

// stageCount covers stage 0 (context collection) through stage 5.
const stageCount = 6

// stageDef describes one generation stage: its canonical Japanese name and
// how to build its system prompt from the collected context and earlier
// outputs. Stage 0 is not in this table, it has no prompt.
type stageDef struct {
	num  int
	name string
	// buildPrompt assembles the system prompt. outputs holds the parsed
	// documents of earlier stages keyed by stage number.
	buildPrompt func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string
	// post runs after parsing, for stage-specific output massaging.
	post func(doc map[string]any, rctx *RunContext) map[string]any
}

// stage0Name is the display name of the context collection stage.
const stage0Name = "コンテキスト収集"

// generationStages is the ordered dispatch table for stages 1 through 5.
var generationStages = []stageDef{
	{
		num:  1,
		name: "課題構造化 + BANT-Cチェック",
		buildPrompt: func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string {
			return fillPrompt(stage1SystemPrompt, map[string]string{
				"meeting_text": rctx.Minute.RawText,
				"parsed_json":  jsonBlock(rctx.Minute.ParsedJSON),
				"kb_context":   buildKnowledgeBlock(rctx.Knowledge),
			})
		},
		post: func(doc map[string]any, rctx *RunContext) map[string]any {
			return ValidateEvidence(doc, rctx.Minute.RawText)
		},
	},
	{
		num:  2,
		name: "逆算プランニング",
		buildPrompt: func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string {
			stage2 := cfg.StageFor(2)
			sims := rctx.Simulations
			if !stage2.SimulationEnabled() {
				sims = nil
			}
			wages := rctx.Wages
			if !stage2.WageDataEnabled() {
				wages = nil
			}
			return fillPrompt(stage2SystemPrompt, map[string]string{
				"stage1_output":    jsonBlock(outputs[1]),
				"kb_context":       buildKnowledgeBlock(rctx.Knowledge),
				"pricing_data":     jsonBlock(rctx.Pricing),
				"simulation_data":  jsonBlock(sims),
				"wage_data":        jsonBlock(wages),
				"publication_data": jsonBlock(rctx.Publications),
				"campaign_data":    jsonBlock(rctx.Campaigns),
				"seasonal_data":    jsonBlock(rctx.Seasonal),
			})
		},
	},
	{
		num:  3,
		name: "アクションプラン詳細化",
		buildPrompt: func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string {
			return fillPrompt(stage3SystemPrompt, map[string]string{
				"stage1_output": jsonBlock(outputs[1]),
				"stage2_output": jsonBlock(outputs[2]),
				"kb_context":    buildKnowledgeBlock(rctx.Knowledge),
			})
		},
	},
	{
		num:  4,
		name: "原稿提案生成",
		buildPrompt: func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string {
			return fillPrompt(stage4SystemPrompt, map[string]string{
				"stage1_output":   jsonBlock(outputs[1]),
				"stage2_output":   jsonBlock(outputs[2]),
				"kb_context":      buildKnowledgeBlock(rctx.Knowledge),
				"catchcopy_count": strconv.Itoa(cfg.StageFor(4).CatchcopyTarget()),
			})
		},
	},
	{
		num:  5,
		name: "チェックリスト + まとめ",
		buildPrompt: func(rctx *RunContext, cfg *Config, outputs map[int]map[string]any) string {
			stage4 := "（Stage 4はスキップされました）"
			if out, ok := outputs[4]; ok {
				stage4 = jsonBlock(out)
			}
			return fillPrompt(stage5SystemPrompt, map[string]string{
				"stage1_output":  jsonBlock(outputs[1]),
				"stage2_output":  jsonBlock(outputs[2]),
				"stage3_output":  jsonBlock(outputs[3]),
				"stage4_output":  stage4,
				"document_links": jsonBlock(rctx.Documents),
			})
		},
	},
}

// StageName returns the canonical display name for a stage number,
// preferring the tenant-configured name.
func StageName(cfg *Config, n int) string {
	if sc := cfg.StageFor(n); sc.Name != "" {
		return sc.Name
	}
	if n == 0 {
		return stage0Name
	}
	for _, def := range generationStages {
		if def.num == n {
			return def.name
		}
	}
	return "Stage " + strconv.Itoa(n)
}

// jsonBlock renders a value as indented JSON for prompt injection. Empty
// collections render as their JSON zero so the model sees the absence
// explicitly.
func jsonBlock(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}

// skippedResult builds the stage result recorded for a disabled stage.
func skippedResult(n int, name string) model.StageResult {
	return model.StageResult{Stage: n, Name: name, Status: model.StageStatusSkipped}
}
