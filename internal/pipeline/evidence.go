package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Evidence matching thresholds, in runes. Japanese quotes regularly differ
// from the minute only in whitespace and line breaks, so comparison runs on
// whitespace-stripped text.
const (
	evidenceWindowLen  = 20
	evidenceWindowStep = 5
	evidenceMinWindow  = 15
	evidenceMinExact   = 8
)

// ValidateEvidence drops issues whose quoted evidence cannot be located in
// the minute text, then renumbers the survivors. This keeps hallucinated
// issues out of the proposal while tolerating minor reformatting by the
// model.
func ValidateEvidence(doc map[string]any, minuteText string) map[string]any {
	rawIssues, ok := doc["issues"].([]any)
	if !ok {
		return doc
	}

	normalizedText := normalizeWhitespace(minuteText)
	kept := []any{}
	removed := 0

	for _, raw := range rawIssues {
		issue, ok := raw.(map[string]any)
		if !ok {
			removed++
			continue
		}
		evidence, _ := issue["evidence"].(string)
		if evidence == "" {
			removed++
			continue
		}

		if evidenceFound(normalizeWhitespace(evidence), normalizedText) {
			kept = append(kept, issue)
		} else {
			removed++
			title, _ := issue["title"].(string)
			zap.L().Warn("dropped issue with unverifiable evidence",
				zap.String("title", title),
			)
		}
	}

	if removed > 0 {
		zap.L().Info("evidence validation",
			zap.Int("kept", len(kept)),
			zap.Int("removed", removed),
		)
	}

	for i, raw := range kept {
		if issue, ok := raw.(map[string]any); ok {
			issue["id"] = fmt.Sprintf("I-%d", i+1)
		}
	}

	doc["issues"] = kept
	return doc
}

// evidenceFound reports whether the evidence plausibly appears in the
// text. Long quotes match via sliding rune windows so a partially garbled
// quote still counts, short quotes need an exact substring, and very short
// quotes pass unchecked.
func evidenceFound(evidence, text string) bool {
	runes := []rune(evidence)
	switch {
	case len(runes) >= evidenceMinWindow:
		for start := 0; start <= len(runes)-evidenceMinWindow; start += evidenceWindowStep {
			end := start + evidenceWindowLen
			if end > len(runes) {
				end = len(runes)
			}
			if strings.Contains(text, string(runes[start:end])) {
				return true
			}
		}
		return false
	case len(runes) >= evidenceMinExact:
		return strings.Contains(text, evidence)
	default:
		return true
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
