package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/proposal-cli/pkg/adminapi"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// Config is the tenant-scoped pipeline configuration resolved from the
// admin service (or the embedded defaults when none exists).
type Config struct {
	Enabled      *bool                  `json:"enabled,omitempty" yaml:"enabled"`
	PipelineName string                 `json:"pipeline_name" yaml:"pipeline_name"`
	Stages       map[string]StageConfig `json:"stage_config" yaml:"stage_config"`
	KBMapping    map[string]KBCategory  `json:"kb_mapping" yaml:"kb_mapping"`
	Output       OutputTemplate         `json:"output_template" yaml:"output_template"`
	IsDefault    bool                   `json:"is_default" yaml:"is_default"`
}

// StageConfig configures a single stage. Nil pointer fields mean "use the
// built-in default".
type StageConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled"`
	Name           string   `json:"name,omitempty" yaml:"name"`
	Model          string   `json:"model,omitempty" yaml:"model"`
	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens      int64    `json:"max_tokens,omitempty" yaml:"max_tokens"`
	PromptOverride string   `json:"prompt_override,omitempty" yaml:"prompt_override"`

	// Stage 2 data toggles.
	UseSimulation *bool `json:"use_simulation,omitempty" yaml:"use_simulation"`
	UseWageData   *bool `json:"use_wage_data,omitempty" yaml:"use_wage_data"`

	// Stage 4 catch copy generation.
	GenerateCatchcopy *bool `json:"generate_catchcopy,omitempty" yaml:"generate_catchcopy"`
	CatchcopyCount    int   `json:"catchcopy_count,omitempty" yaml:"catchcopy_count"`
}

// IsEnabled treats an absent flag as enabled.
func (s StageConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SimulationEnabled treats an absent flag as enabled.
func (s StageConfig) SimulationEnabled() bool {
	return s.UseSimulation == nil || *s.UseSimulation
}

// WageDataEnabled treats an absent flag as enabled.
func (s StageConfig) WageDataEnabled() bool {
	return s.UseWageData == nil || *s.UseWageData
}

// CatchcopyTarget returns how many catch copy proposals stage 4 should
// produce, zero when generation is disabled.
func (s StageConfig) CatchcopyTarget() int {
	if s.GenerateCatchcopy != nil && !*s.GenerateCatchcopy {
		return 0
	}
	if s.CatchcopyCount > 0 {
		return s.CatchcopyCount
	}
	return 5
}

// KBCategory maps a named knowledge category onto concrete knowledge bases
// and the stages whose prompts receive its chunks.
type KBCategory struct {
	KnowledgeBaseIDs    []string `json:"knowledge_base_ids" yaml:"knowledge_base_ids"`
	UsedInStages        []int    `json:"used_in_stages" yaml:"used_in_stages"`
	SearchQueryTemplate string   `json:"search_query_template" yaml:"search_query_template"`
	MaxChunks           int      `json:"max_chunks" yaml:"max_chunks"`
}

// ChunkLimit returns the per-category chunk cap, defaulting to 10.
func (c KBCategory) ChunkLimit() int {
	if c.MaxChunks > 0 {
		return c.MaxChunks
	}
	return 10
}

// ExpandQuery fills the search query template placeholders with minute
// attributes. Unknown placeholders stay verbatim.
func (c KBCategory) ExpandQuery(industry, companyName, area string) string {
	r := strings.NewReplacer(
		"{industry}", industry,
		"{media_name}", companyName,
		"{issue_category}", "",
		"{area}", area,
	)
	return r.Replace(c.SearchQueryTemplate)
}

// OutputTemplate describes the display sections assembled from stage
// outputs.
type OutputTemplate struct {
	Sections []SectionDef `json:"sections" yaml:"sections"`
	Format   string       `json:"format" yaml:"format"`
	Locale   string       `json:"locale" yaml:"locale"`
}

// SectionDef maps one output section onto the stage that produces it.
type SectionDef struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Stage       int    `json:"stage" yaml:"stage"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// IsEnabled treats an absent pipeline-level flag as enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// StageFor returns the config for a stage number, falling back to an
// enabled, unnamed default when the document has no entry. StageName fills
// in the canonical display name for unnamed stages.
func (c *Config) StageFor(n int) StageConfig {
	if sc, ok := c.Stages[fmt.Sprintf("stage_%d", n)]; ok {
		return sc
	}
	return StageConfig{}
}

// CategoriesForStage returns the knowledge categories whose chunks feed the
// given stage.
func (c *Config) CategoriesForStage(n int) map[string]KBCategory {
	out := make(map[string]KBCategory)
	for name, cat := range c.KBMapping {
		for _, s := range cat.UsedInStages {
			if s == n {
				out[name] = cat
				break
			}
		}
	}
	return out
}

// EnabledStages lists the stage numbers that will run.
func (c *Config) EnabledStages() []int {
	var out []int
	for i := 0; i < stageCount; i++ {
		if c.StageFor(i).IsEnabled() {
			out = append(out, i)
		}
	}
	return out
}

// DefaultConfig returns the embedded fallback configuration.
func DefaultConfig() *Config {
	var cfg Config
	// The embedded document is validated by tests, decoding cannot fail at
	// runtime.
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		panic(fmt.Sprintf("pipeline: decode embedded defaults: %v", err))
	}
	cfg.IsDefault = true
	return &cfg
}

// Resolver fetches tenant configurations through a TTL cache and falls back
// to the embedded defaults on any failure, so a broken admin service never
// blocks proposal generation.
type Resolver struct {
	admin adminapi.Client
	cache *ConfigCache
}

// NewResolver creates a Resolver. The cache is owned by the caller so it
// can be shared across resolvers or primed in tests.
func NewResolver(admin adminapi.Client, cache *ConfigCache) *Resolver {
	return &Resolver{admin: admin, cache: cache}
}

// Resolve returns the pipeline config for a tenant and the source it came
// from ("cache", "admin", or "default"). It never fails.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Config, string) {
	if cfg := r.cache.Get(tenantID); cfg != nil {
		return cfg, "cache"
	}

	if r.admin == nil {
		return DefaultConfig(), "default"
	}

	raw, err := r.admin.FetchPipelineConfig(ctx, tenantID)
	if err != nil {
		zap.L().Warn("pipeline config fetch failed, using defaults",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return DefaultConfig(), "default"
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		zap.L().Warn("pipeline config decode failed, using defaults",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return DefaultConfig(), "default"
	}

	// Tenant documents describe overrides on top of the defaults. Missing
	// template sections fall back so sections never vanish silently.
	if len(cfg.Output.Sections) == 0 {
		cfg.Output = DefaultConfig().Output
	}
	if cfg.PipelineName == "" {
		cfg.PipelineName = defaultPipelineName
	}

	r.cache.Put(tenantID, &cfg)
	return &cfg, "admin"
}

const defaultPipelineName = "次回商談提案書"
