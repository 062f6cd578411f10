package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minuteText = `本日はお時間をいただきありがとうございます。
現在、ホールスタッフの採用が難航しており、応募が月に2件程度しかありません。
予算は月50万円です。決裁は店長の田中様が行います。
繁忙期の12月までに3名を採用したいと考えています。`

func issueDoc(issues ...map[string]any) map[string]any {
	raw := make([]any, len(issues))
	for i, issue := range issues {
		raw[i] = issue
	}
	return map[string]any{"issues": raw}
}

func issueTitles(doc map[string]any) []string {
	var out []string
	for _, raw := range doc["issues"].([]any) {
		out = append(out, raw.(map[string]any)["title"].(string))
	}
	return out
}

func TestValidateEvidence_KeepsVerbatimQuote(t *testing.T) {
	doc := issueDoc(map[string]any{
		"id":       "I-1",
		"title":    "予算確認済み",
		"evidence": "予算は月50万円です",
	})

	out := ValidateEvidence(doc, minuteText)
	assert.Equal(t, []string{"予算確認済み"}, issueTitles(out))
}

func TestValidateEvidence_DropsFabricatedQuote(t *testing.T) {
	doc := issueDoc(
		map[string]any{
			"id":       "I-1",
			"title":    "採用難",
			"evidence": "ホールスタッフの採用が難航しており、応募が月に2件程度",
		},
		map[string]any{
			"id":       "I-2",
			"title":    "捏造された課題",
			"evidence": "来月には応募数が倍増する予定だと伺いました",
		},
	)

	out := ValidateEvidence(doc, minuteText)
	assert.Equal(t, []string{"採用難"}, issueTitles(out))
}

func TestValidateEvidence_RenumbersSurvivors(t *testing.T) {
	doc := issueDoc(
		map[string]any{"id": "I-1", "title": "捏造", "evidence": "全く存在しない引用文がここに入っています"},
		map[string]any{"id": "I-2", "title": "本物1", "evidence": "予算は月50万円です"},
		map[string]any{"id": "I-3", "title": "本物2", "evidence": "12月までに3名を採用したい"},
	)

	out := ValidateEvidence(doc, minuteText)
	issues := out["issues"].([]any)
	require.Len(t, issues, 2)
	assert.Equal(t, "I-1", issues[0].(map[string]any)["id"])
	assert.Equal(t, "I-2", issues[1].(map[string]any)["id"])
}

func TestValidateEvidence_DropsEmptyEvidence(t *testing.T) {
	doc := issueDoc(map[string]any{"id": "I-1", "title": "根拠なし", "evidence": ""})

	out := ValidateEvidence(doc, minuteText)
	assert.Empty(t, out["issues"])
}

func TestValidateEvidence_AllDroppedLeavesEmptyList(t *testing.T) {
	doc := issueDoc(map[string]any{
		"id":       "I-1",
		"title":    "捏造",
		"evidence": "全く存在しない引用文がここに入っています",
	})

	out := ValidateEvidence(doc, minuteText)
	issues, ok := out["issues"].([]any)
	require.True(t, ok)
	require.NotNil(t, issues)
	assert.Empty(t, issues)

	// Downstream consumers expect a JSON list, never null.
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"issues":[]`)
}

func TestValidateEvidence_ToleratesWhitespaceDifferences(t *testing.T) {
	// The model reflowed the quote across lines; comparison ignores
	// whitespace entirely.
	doc := issueDoc(map[string]any{
		"id":       "I-1",
		"title":    "採用目標",
		"evidence": "繁忙期の12月までに\n3名を採用したい",
	})

	out := ValidateEvidence(doc, minuteText)
	require.Len(t, out["issues"], 1)
}

func TestValidateEvidence_ShortQuotesPassUnchecked(t *testing.T) {
	doc := issueDoc(map[string]any{
		"id":       "I-1",
		"title":    "短い引用",
		"evidence": "田中様",
	})

	out := ValidateEvidence(doc, minuteText)
	require.Len(t, out["issues"], 1)
}

func TestValidateEvidence_MidLengthNeedsExactMatch(t *testing.T) {
	doc := issueDoc(
		map[string]any{"id": "I-1", "title": "一致する", "evidence": "決裁は店長の田中様"},
		map[string]any{"id": "I-2", "title": "一致しない", "evidence": "決裁は部長の佐藤様"},
	)

	out := ValidateEvidence(doc, minuteText)
	assert.Equal(t, []string{"一致する"}, issueTitles(out))
}

func TestValidateEvidence_NoIssuesListPassthrough(t *testing.T) {
	doc := map[string]any{RawResponseKey: "unparsed"}
	out := ValidateEvidence(doc, minuteText)
	assert.Equal(t, doc, out)
}
