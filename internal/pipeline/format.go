package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormatContextSummary renders the stage 0 collection result as a short
// markdown digest for the progress stream.
func FormatContextSummary(rctx *RunContext) string {
	var lines []string
	m := rctx.Minute

	lines = append(lines, "### 商談情報")
	name := m.CompanyName
	if name == "" {
		name = "不明"
	}
	lines = append(lines, "- **企業名**: "+name)
	if m.Industry != "" {
		lines = append(lines, "- **業種**: "+m.Industry)
	}
	if m.Area != "" {
		lines = append(lines, "- **地域**: "+m.Area)
	}
	if m.MeetingDate != nil {
		lines = append(lines, "- **商談日**: "+m.MeetingDate.Format("2006-01-02"))
	}
	lines = append(lines, "")

	if len(rctx.Knowledge) > 0 {
		lines = append(lines, "### ナレッジベース検索結果")
		for _, name := range sortedKeys(rctx.Knowledge) {
			lines = append(lines, fmt.Sprintf("- **%s**: %d件取得", name, len(rctx.Knowledge[name])))
		}
		lines = append(lines, "")
	}

	if n := len(rctx.Pricing); n > 0 {
		lines = append(lines, fmt.Sprintf("### 媒体・料金データ: %d件", n))
		for i, p := range rctx.Pricing {
			if i == 5 {
				lines = append(lines, fmt.Sprintf("- ...他 %d件", n-5))
				break
			}
			lines = append(lines, fmt.Sprintf("- %s / %s", p.MediaName, p.PlanName))
		}
		lines = append(lines, "")
	}

	if n := len(rctx.Publications); n > 0 {
		lines = append(lines, fmt.Sprintf("### 前回掲載実績: %d件", n), "")
	}
	if n := len(rctx.Campaigns); n > 0 {
		lines = append(lines, fmt.Sprintf("### キャンペーン情報: %d件", n), "")
	}
	if n := len(rctx.Simulations); n > 0 {
		lines = append(lines, fmt.Sprintf("### シミュレーションパラメータ: %d件", n))
	}
	if n := len(rctx.Wages); n > 0 {
		lines = append(lines, fmt.Sprintf("### 地域別時給データ: %d件", n))
	}
	if rctx.Seasonal != nil {
		lines = append(lines, fmt.Sprintf("### 季節トレンド: %s（%s）", rctx.Seasonal.Season, rctx.Seasonal.Demand))
	}

	return strings.Join(lines, "\n")
}

// FormatStageOutput renders a stage output as markdown. Unknown shapes and
// unparsed responses fall back to a fenced block so the stream always has
// something readable.
func FormatStageOutput(stage int, doc map[string]any) string {
	var formatted string
	switch stage {
	case 1:
		formatted = formatIssues(doc)
	case 2:
		formatted = formatProposals(doc)
	case 3:
		formatted = formatActionPlan(doc)
	case 4:
		formatted = formatAdCopy(doc)
	case 5:
		formatted = formatChecklistSummary(doc)
	}
	if strings.TrimSpace(formatted) != "" {
		return formatted
	}

	if raw, ok := doc[RawResponseKey].(string); ok {
		return "```\n" + raw + "\n```"
	}
	return "```json\n" + jsonBlock(doc) + "\n```"
}

// FormatSectionContent renders the content of one output-template section.
// Sections sharing a stage get different views of the same document; only
// the proposal section emits machine-readable JSON, for the plan
// comparison widget.
func FormatSectionContent(sectionID string, stage int, doc map[string]any) string {
	var formatted string
	switch sectionID {
	case "issues":
		formatted = formatIssues(doc)
	case "agenda":
		formatted = formatAgendaSection(doc)
	case "proposal":
		formatted = formatProposalJSON(doc)
	case "action_plan":
		formatted = formatActionPlan(doc)
	case "ad_copy":
		formatted = formatAdCopy(doc)
	case "checklist":
		formatted = formatChecklistSection(doc)
	case "summary":
		formatted = formatSummarySection(doc)
	}
	if strings.TrimSpace(formatted) != "" {
		return formatted
	}
	return FormatStageOutput(stage, doc)
}

func formatIssues(doc map[string]any) string {
	var lines []string
	for _, raw := range arr(doc, "issues") {
		issue, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("### %s %s", str(issue, "id"), str(issue, "title")))
		lines = append(lines, "**カテゴリ**: "+str(issue, "category"))
		lines = append(lines, "", str(issue, "detail"))
		if bant := obj(issue, "bant_c"); len(bant) > 0 {
			lines = append(lines, "", "| BANT-C | ステータス | 詳細 |", "|--------|-----------|------|")
			for _, key := range []string{"budget", "authority", "need", "timeline", "competitor"} {
				item := obj(bant, key)
				lines = append(lines, fmt.Sprintf("| %s | %s | %s |",
					strings.ToUpper(key), str(item, "status"), str(item, "detail")))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

var tierLabels = map[string]string{"matsu": "松", "take": "竹", "ume": "梅"}

func formatProposals(doc map[string]any) string {
	var lines []string

	for _, raw := range arr(doc, "proposals") {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("### 課題 %s への提案", str(prop, "issue_id")))

		tiers := obj(prop, "shochikubai")
		recommended := str(prop, "recommended")
		if recommended != "" {
			label := recommended
			if l, ok := tierLabels[recommended]; ok {
				label = l
			}
			lines = append(lines, fmt.Sprintf("**推奨**: %sプラン", label))
		}
		if reason := str(prop, "recommendation_reason"); reason != "" {
			lines = append(lines, "*"+reason+"*")
		}
		lines = append(lines, "")

		if len(tiers) > 0 {
			for _, tierKey := range []string{"matsu", "take", "ume"} {
				tier := obj(tiers, tierKey)
				if len(tier) == 0 {
					continue
				}
				star := ""
				if tierKey == recommended {
					star = " **★推奨**"
				}
				price := ""
				if total, ok := num(tier, "total_price"); ok && total > 0 {
					price = fmt.Sprintf(" (¥%s)", yen(total))
				}
				lines = append(lines, fmt.Sprintf("#### %sプラン%s%s", tierLabels[tierKey], price, star))
				for _, itemRaw := range arr(tier, "items") {
					item, ok := itemRaw.(map[string]any)
					if !ok {
						continue
					}
					lines = append(lines, formatPlanItem(item))
				}
				if effect := str(tier, "expected_effect"); effect != "" {
					lines = append(lines, "", "期待効果: "+effect)
				}
				if rationale := str(tier, "rationale"); rationale != "" {
					lines = append(lines, "選定理由: "+rationale)
				}
				lines = append(lines, "")
			}
		} else {
			// Flat proposal shape without plan tiers.
			lines = append(lines, formatPlanItem(prop), "")
		}
	}

	if budget := obj(doc, "total_budget_range"); len(budget) > 0 {
		lines = append(lines, "### 予算比較")
		for _, pair := range [][2]string{{"matsu_total", "松"}, {"take_total", "竹"}, {"ume_total", "梅"}} {
			if v, ok := num(budget, pair[0]); ok && v > 0 {
				lines = append(lines, fmt.Sprintf("- %s: ¥%s", pair[1], yen(v)))
			}
		}
		lines = append(lines, "")
	}

	if timeline := arr(doc, "reverse_timeline"); len(timeline) > 0 {
		lines = append(lines, "### 逆算タイムライン")
		for _, raw := range timeline {
			if t, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("- **%s** %s: %s",
					str(t, "date"), str(t, "milestone"), str(t, "action")))
			}
		}
		lines = append(lines, "")
	}

	if seasonal := str(doc, "seasonal_context"); seasonal != "" {
		lines = append(lines, "### 季節考慮: "+seasonal, "")
	}

	if agenda := arr(doc, "agenda_items"); len(agenda) > 0 {
		lines = append(lines, "### 次回商談アジェンダ")
		for i, item := range agenda {
			lines = append(lines, fmt.Sprintf("%d. %v", i+1, item))
		}
	}

	return strings.Join(lines, "\n")
}

func formatPlanItem(item map[string]any) string {
	var b strings.Builder
	b.WriteString("- " + str(item, "media_name") + " / " + str(item, "product_name"))
	price, ok := num(item, "final_price")
	if !ok || price == 0 {
		price, ok = num(item, "price")
	}
	if ok && price > 0 {
		b.WriteString(" ¥" + yen(price))
	}
	if disc := str(item, "campaign_discount"); disc != "" {
		b.WriteString(" (割引: " + disc + ")")
	}
	b.WriteString(" (" + str(item, "period") + ")")
	return b.String()
}

func formatActionPlan(doc map[string]any) string {
	var lines []string

	for _, raw := range arr(doc, "action_plan") {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("### %s %s", str(action, "id"), str(action, "title")))
		lines = append(lines, "**優先度**: "+str(action, "priority"))
		lines = append(lines, "**対応課題**: "+str(action, "related_issue_id"))
		lines = append(lines, "", str(action, "description"))
		for _, stRaw := range arr(action, "subtasks") {
			if st, ok := stRaw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("- [ ] %s: %s", str(st, "title"), str(st, "detail")))
			}
		}
		lines = append(lines, "")
	}

	if coaching := obj(doc, "sales_coaching"); len(coaching) > 0 {
		if questions := arr(coaching, "deep_dive_questions"); len(questions) > 0 {
			lines = append(lines, "### 深掘り質問")
			for _, raw := range questions {
				if q, ok := raw.(map[string]any); ok {
					lines = append(lines, fmt.Sprintf("- **%s**: %s", str(q, "topic"), str(q, "question")))
					if fu := str(q, "follow_up"); fu != "" {
						lines = append(lines, "  フォローアップ: "+fu)
					}
				}
			}
			lines = append(lines, "")
		}
		if objections := arr(coaching, "objection_handling"); len(objections) > 0 {
			lines = append(lines, "### 想定反論と対応")
			for _, raw := range objections {
				if o, ok := raw.(map[string]any); ok {
					lines = append(lines, "- **反論**: "+str(o, "objection"))
					lines = append(lines, "  **対応**: "+str(o, "response"))
					if ev := str(o, "evidence"); ev != "" {
						lines = append(lines, "  根拠: "+ev)
					}
				}
			}
			lines = append(lines, "")
		}
	}

	if followup := obj(doc, "follow_up_actions"); len(followup) > 0 {
		if email := obj(followup, "email_draft"); len(email) > 0 {
			lines = append(lines, "### フォローアップメール案")
			lines = append(lines, "**件名**: "+str(email, "subject"))
			lines = append(lines, "", str(email, "body"), "")
		}
		if tasks := arr(followup, "tasks"); len(tasks) > 0 {
			lines = append(lines, "### フォローアップタスク")
			for _, raw := range tasks {
				if t, ok := raw.(map[string]any); ok {
					lines = append(lines, fmt.Sprintf("- [ ] **%s** (優先: %s)", str(t, "title"), str(t, "priority")))
				}
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

func formatAdCopy(doc map[string]any) string {
	var lines []string

	if persona := obj(doc, "target_persona"); len(persona) > 0 {
		lines = append(lines, "### ターゲットペルソナ")
		lines = append(lines, "- **年齢層**: "+str(persona, "age_range"))
		lines = append(lines, "- **現職**: "+str(persona, "current_job"))
		lines = append(lines, "- **動機**: "+str(persona, "motivation"))
		lines = append(lines, "")
	}

	if copies := arr(doc, "catchcopy_proposals"); len(copies) > 0 {
		lines = append(lines, "### キャッチコピー案")
		for i, raw := range copies {
			if c, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("%d. **%s**", i+1, str(c, "copy")))
				lines = append(lines, "   "+str(c, "concept"))
			}
		}
		lines = append(lines, "")
	}

	if draft := obj(doc, "job_description_draft"); len(draft) > 0 {
		lines = append(lines, "### 求人タイトル案: "+str(draft, "title"))
		lines = append(lines, "", "**仕事内容**:", str(draft, "work_content"))
		lines = append(lines, "", "**応募資格**:", str(draft, "qualifications"))
	}

	return strings.Join(lines, "\n")
}

func formatChecklistSummary(doc map[string]any) string {
	var lines []string
	if cl := formatChecklistSection(doc); cl != "" {
		lines = append(lines, "### チェックリスト", cl, "")
	}
	if sm := formatSummarySection(doc); sm != "" {
		lines = append(lines, "### まとめ", sm)
	}
	return strings.Join(lines, "\n")
}

func formatAgendaSection(doc map[string]any) string {
	var lines []string

	if agenda := arr(doc, "agenda_items"); len(agenda) > 0 {
		for i, item := range agenda {
			lines = append(lines, fmt.Sprintf("%d. %v", i+1, item))
		}
		lines = append(lines, "")
	}

	if timeline := arr(doc, "reverse_timeline"); len(timeline) > 0 {
		lines = append(lines, "### 逆算タイムライン")
		for _, raw := range timeline {
			if t, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("- **%s** %s: %s",
					str(t, "date"), str(t, "milestone"), str(t, "action")))
			}
		}
		lines = append(lines, "")
	}

	if seasonal := str(doc, "seasonal_context"); seasonal != "" {
		lines = append(lines, "### 季節考慮", seasonal, "")
	}

	return strings.Join(lines, "\n")
}

// formatProposalJSON emits the machine-readable subset of the stage 2
// output consumed by the plan comparison widget.
func formatProposalJSON(doc map[string]any) string {
	subset := make(map[string]any)
	for _, key := range []string{"proposals", "total_budget_range", "over_budget_justification", "trend_impact"} {
		if v, ok := doc[key]; ok && v != nil {
			subset[key] = v
		}
	}
	if len(subset) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(subset, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func formatChecklistSection(doc map[string]any) string {
	var lines []string
	for _, raw := range arr(doc, "checklist") {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [ ] **%s** (%s)", str(item, "category"), str(item, "related_issue_id")))
		lines = append(lines, "  "+str(item, "item"))
		if q := str(item, "question_example"); q != "" {
			lines = append(lines, "  *質問例: "+q+"*")
		}
	}
	return strings.Join(lines, "\n")
}

func formatSummarySection(doc map[string]any) string {
	var lines []string

	if summary := obj(doc, "summary"); len(summary) > 0 {
		if overview := str(summary, "overview"); overview != "" {
			lines = append(lines, overview, "")
		}
		for _, raw := range arr(summary, "key_points") {
			if kp, ok := raw.(map[string]any); ok {
				var issues []string
				for _, ri := range arr(kp, "related_issues") {
					issues = append(issues, fmt.Sprintf("%v", ri))
				}
				lines = append(lines, fmt.Sprintf("- %s (課題: %s)", str(kp, "point"), strings.Join(issues, ", ")))
			}
		}
		if steps := arr(summary, "next_steps"); len(steps) > 0 {
			lines = append(lines, "", "### 次のステップ")
			for i, step := range steps {
				lines = append(lines, fmt.Sprintf("%d. %v", i+1, step))
			}
		}
		lines = append(lines, "")
	}

	if refDocs := arr(doc, "reference_documents"); len(refDocs) > 0 {
		lines = append(lines, "### 参考資料")
		for _, raw := range refDocs {
			if d, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("- **%s** (%s): %s", str(d, "name"), str(d, "category"), str(d, "usage")))
				if url := str(d, "url"); url != "" {
					lines = append(lines, "  URL: "+url)
				}
			}
		}
	}

	return strings.Join(lines, "\n")
}

// --- document accessors ---

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func arr(m map[string]any, key string) []any {
	a, _ := m[key].([]any)
	return a
}

func obj(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

// yen formats an amount with thousands separators, dropping any fraction.
func yen(v float64) string {
	s := strconv.FormatInt(int64(v), 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
