package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_ValidJSON(t *testing.T) {
	doc := ParseResponse(`{"issues": [{"id": "I-1", "title": "採用難"}], "total": 3}`)

	issues, ok := doc["issues"].([]any)
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, float64(3), doc["total"])
}

func TestParseResponse_StripsCodeFence(t *testing.T) {
	raw := "```json\n{\"checklist\": []}\n```"
	doc := ParseResponse(raw)

	_, hasRaw := doc[RawResponseKey]
	assert.False(t, hasRaw)
	assert.Contains(t, doc, "checklist")
}

func TestParseResponse_StripsFenceWithoutClosing(t *testing.T) {
	raw := "```\n{\"a\": 1}"
	doc := ParseResponse(raw)
	assert.Equal(t, float64(1), doc["a"])
}

func TestParseResponse_RepairsTruncatedArray(t *testing.T) {
	doc := ParseResponse(`{"proposals": [{"media_name": "バイトル", "price": 250000}, {"media_name": "タウンワ`)

	proposals, ok := doc["proposals"].([]any)
	require.True(t, ok, "expected repaired document, got %v", doc)
	require.NotEmpty(t, proposals)
	first := proposals[0].(map[string]any)
	assert.Equal(t, "バイトル", first["media_name"])
	assert.Equal(t, float64(250000), first["price"])
}

func TestParseResponse_RepairsOpenStringAndContainers(t *testing.T) {
	doc := ParseResponse(`{"a": [1, 2, {"b": "x`)

	a, ok := doc["a"].([]any)
	require.True(t, ok, "expected repaired document, got %v", doc)
	require.Len(t, a, 3)
	assert.Equal(t, float64(1), a[0])
	assert.Equal(t, float64(2), a[1])
	assert.Equal(t, map[string]any{}, a[2])
}

func TestParseResponse_RepairTrimsTrailingComma(t *testing.T) {
	doc := ParseResponse(`{"items": ["a", "b",`)

	items, ok := doc["items"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, items)
}

func TestParseResponse_FallbackKeepsRawText(t *testing.T) {
	raw := "すみません、JSON形式では出力できませんでした。"
	doc := ParseResponse(raw)

	assert.Equal(t, raw, doc[RawResponseKey])
	assert.Len(t, doc, 1)
}

func TestParseResponse_UnrecoverableTruncationFallsBack(t *testing.T) {
	// Truncated inside the very first string: nothing to cut back to.
	doc := ParseResponse(`{"key`)
	assert.Contains(t, doc, RawResponseKey)
}
