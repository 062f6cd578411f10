package pipeline

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// RawResponseKey is the fallback key used when a model response cannot be
// parsed as JSON.
const RawResponseKey = "rawResponse"

// ParseResponse extracts a JSON object from a model response. It strips
// markdown code fences, repairs truncated documents by closing open
// brackets, and never fails: unparseable text comes back under
// RawResponseKey so downstream formatting still has something to show.
func ParseResponse(raw string) map[string]any {
	text := stripFences(strings.TrimSpace(raw))

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}

	if repaired := repairTruncated(text); repaired != nil {
		zap.L().Warn("repaired truncated model response")
		return repaired
	}

	zap.L().Warn("model response is not valid JSON, keeping raw text",
		zap.Int("length", len(text)),
	)
	return map[string]any{RawResponseKey: text}
}

// stripFences removes a surrounding markdown code fence, tolerating a
// language tag on the opening fence and a missing closing fence.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// repairTruncated attempts to close a JSON document that was cut off
// mid-generation. Returns nil when the text is not repairable.
func repairTruncated(text string) map[string]any {
	stripped := strings.TrimRight(text, " \t\r\n")

	inString, stack := scanJSON(stripped)
	if len(stack) == 0 {
		// Nothing open, the parse failure has some other cause.
		return nil
	}

	// Cut a partial string back to the last closed quote. Truncation
	// inside the very first string is unrecoverable.
	for inString {
		last := strings.LastIndex(stripped[:len(stripped)-1], `"`)
		if last <= 0 {
			return nil
		}
		stripped = stripped[:last+1]
		inString, stack = scanJSON(stripped)
	}

	if out := closeAndDecode(stripped, stack); out != nil {
		return out
	}

	// The tail may be a dangling member (a key with no value). Drop
	// everything after the last structural token and retry.
	if cut := lastStructural(stripped); cut > 0 {
		stripped = stripped[:cut+1]
		_, stack = scanJSON(stripped)
		return closeAndDecode(stripped, stack)
	}
	return nil
}

// closeAndDecode strips a trailing comma, closes the open brackets in
// reverse order of opening, and decodes.
func closeAndDecode(text string, stack []byte) map[string]any {
	text = strings.TrimRight(text, " \t\r\n")
	text = strings.TrimRight(text, ",")

	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			text += "}"
		case '[':
			text += "]"
		}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil
	}
	return out
}

// lastStructural returns the index of the last comma or opening bracket
// outside any string, or -1.
func lastStructural(text string) int {
	last := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case ',', '{', '[':
			last = i
		}
	}
	return last
}

// scanJSON walks the text tracking string state and the stack of open
// brackets and braces.
func scanJSON(text string) (inString bool, stack []byte) {
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return inString, stack
}
