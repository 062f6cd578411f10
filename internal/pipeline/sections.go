package pipeline

import "github.com/sells-group/proposal-cli/internal/model"

// noDataPlaceholder fills required sections whose source stage produced no
// output.
const noDataPlaceholder = "（このセクションのデータは生成されませんでした）"

// BuildSections assembles the display sections from the output template and
// whatever stage outputs exist. Required sections without data render a
// placeholder; optional ones render empty.
func BuildSections(cfg *Config, outputs map[int]map[string]any) []model.Section {
	sections := make([]model.Section, 0, len(cfg.Output.Sections))
	for _, def := range cfg.Output.Sections {
		doc, hasData := outputs[def.Stage]
		if len(doc) == 0 {
			hasData = false
		}

		content := ""
		switch {
		case hasData:
			content = FormatSectionContent(def.ID, def.Stage, doc)
		case def.Required:
			content = noDataPlaceholder
		}

		sections = append(sections, model.Section{
			Key:     def.ID,
			Title:   def.Title,
			Stage:   def.Stage,
			Content: content,
			HasData: hasData,
		})
	}
	return sections
}
