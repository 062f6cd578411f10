package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSections_RequiredMissingGetsPlaceholder(t *testing.T) {
	cfg := DefaultConfig()
	outputs := map[int]map[string]any{
		1: {"issues": []any{map[string]any{"id": "I-1", "title": "採用難", "category": "採用課題", "detail": "応募が少ない"}}},
	}

	sections := BuildSections(cfg, outputs)
	require.Len(t, sections, len(cfg.Output.Sections))

	byKey := make(map[string]int)
	for i, s := range sections {
		byKey[s.Key] = i
	}

	issues := sections[byKey["issues"]]
	assert.True(t, issues.HasData)
	assert.Contains(t, issues.Content, "I-1 採用難")

	// Stage 3 never ran; its required section renders the placeholder.
	actionPlan := sections[byKey["action_plan"]]
	assert.False(t, actionPlan.HasData)
	assert.Equal(t, noDataPlaceholder, actionPlan.Content)

	// ad_copy is optional, so it renders empty instead.
	adCopy := sections[byKey["ad_copy"]]
	assert.False(t, adCopy.HasData)
	assert.Empty(t, adCopy.Content)
}

func TestBuildSections_ProposalSectionEmitsJSONSubset(t *testing.T) {
	cfg := DefaultConfig()
	outputs := map[int]map[string]any{
		2: {
			"proposals":    []any{map[string]any{"issue_id": "I-1", "media_name": "バイトル"}},
			"agenda_items": []any{"予算の最終確認"},
		},
	}

	sections := BuildSections(cfg, outputs)

	var proposal, agenda string
	for _, s := range sections {
		switch s.Key {
		case "proposal":
			proposal = s.Content
		case "agenda":
			agenda = s.Content
		}
	}

	// The proposal section is machine-readable JSON limited to the plan
	// comparison keys.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(proposal), &decoded))
	assert.Contains(t, decoded, "proposals")
	assert.NotContains(t, decoded, "agenda_items")

	// The agenda section sharing stage 2 renders markdown instead.
	assert.True(t, strings.HasPrefix(agenda, "1. 予算の最終確認"))
}

func TestBuildSections_RawResponseFallback(t *testing.T) {
	cfg := &Config{Output: OutputTemplate{Sections: []SectionDef{
		{ID: "checklist", Title: "チェックリスト", Stage: 5, Required: true},
	}}}
	outputs := map[int]map[string]any{
		5: {RawResponseKey: "構造化できなかった出力"},
	}

	sections := BuildSections(cfg, outputs)
	require.Len(t, sections, 1)
	assert.True(t, sections[0].HasData)
	assert.Contains(t, sections[0].Content, "構造化できなかった出力")
	assert.Contains(t, sections[0].Content, "```")
}

func TestBuildSections_SectionStageNumbers(t *testing.T) {
	cfg := DefaultConfig()
	sections := BuildSections(cfg, nil)
	for _, s := range sections {
		assert.GreaterOrEqual(t, s.Stage, 1)
		assert.LessOrEqual(t, s.Stage, 5)
	}
}
