package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/refdata"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/knowledge"
)

// RunContext carries everything stage 0 gathered for the later stages.
type RunContext struct {
	Minute *model.Minute

	// SearchTenantID is the tenant used for knowledge searches. It differs
	// from the caller's tenant when a super tenant operates on another
	// tenant's minute.
	SearchTenantID string

	Knowledge map[string][]knowledge.Chunk

	Pricing      []model.MediaPricing
	Simulations  []model.SimulationParam
	Wages        []model.WageData
	Publications []model.PublicationRecord
	Campaigns    []model.Campaign
	Seasonal     *model.SeasonalTrend
	Documents    []model.DocumentLink

	// SearchFailures maps category name to the failure reason for searches
	// that returned nothing. Kept for diagnostics, never fatal.
	SearchFailures map[string]string

	mu sync.Mutex
}

// Collector implements the context collection stage: minute lookup, tenant
// check, knowledge searches, and reference data loads.
type Collector struct {
	store         store.Store
	knowledge     knowledge.Client
	refdata       refdata.Source
	superTenantID string
	topK          int
	maxConc       int
	now           func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorNow overrides the clock, for tests.
func WithCollectorNow(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector creates a Collector. maxConc bounds concurrent knowledge
// searches per stage.
func NewCollector(st store.Store, kb knowledge.Client, rd refdata.Source, superTenantID string, topK, maxConc int, opts ...CollectorOption) *Collector {
	if topK <= 0 {
		topK = 10
	}
	if maxConc <= 0 {
		maxConc = 5
	}
	c := &Collector{
		store:         st,
		knowledge:     kb,
		refdata:       rd,
		superTenantID: superTenantID,
		topK:          topK,
		maxConc:       maxConc,
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect loads the minute, verifies tenant access, runs the stage 0
// knowledge searches, and loads reference data. Reference data failures
// degrade the context rather than failing the run; only a missing minute
// or a tenant mismatch is fatal.
func (c *Collector) Collect(ctx context.Context, cfg *Config, tenantID, minuteID string) (*RunContext, error) {
	minute, err := c.store.GetMinute(ctx, minuteID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load minute")
	}
	if minute == nil {
		return nil, ErrMinuteNotFound
	}

	isSuper := tenantID == c.superTenantID
	if minute.TenantID != "" && !isSuper && minute.TenantID != tenantID {
		return nil, ErrPermissionDenied
	}

	// Super tenants search with the minute's own tenant so the knowledge
	// base tenant filter matches the data that actually exists.
	searchTenant := tenantID
	if isSuper && minute.TenantID != "" {
		searchTenant = minute.TenantID
	}

	rctx := &RunContext{
		Minute:         minute,
		SearchTenantID: searchTenant,
		Knowledge:      make(map[string][]knowledge.Chunk),
		SearchFailures: make(map[string]string),
	}

	if err := c.SearchKnowledge(ctx, rctx, cfg, 0); err != nil {
		return nil, err
	}

	c.loadReferenceData(ctx, rctx, cfg)
	return rctx, nil
}

// SearchKnowledge fans out one search per knowledge category wired to the
// given stage and merges the results into the run context. Individual
// search failures are recorded and skipped.
func (c *Collector) SearchKnowledge(ctx context.Context, rctx *RunContext, cfg *Config, stage int) error {
	categories := cfg.CategoriesForStage(stage)
	if len(categories) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConc)

	for name, cat := range categories {
		if len(cat.KnowledgeBaseIDs) == 0 {
			continue
		}
		g.Go(func() error {
			chunks, err := c.searchCategory(gctx, rctx, cat)
			rctx.mu.Lock()
			defer rctx.mu.Unlock()
			if err != nil {
				rctx.SearchFailures[name] = err.Error()
				zap.L().Warn("knowledge search failed",
					zap.String("category", name),
					zap.Int("stage", stage),
					zap.Error(err),
				)
				return nil
			}
			rctx.Knowledge[name] = append(rctx.Knowledge[name], chunks...)
			zap.L().Info("knowledge search",
				zap.String("category", name),
				zap.Int("stage", stage),
				zap.Int("chunks", len(chunks)),
			)
			return nil
		})
	}

	return g.Wait()
}

// searchCategory queries every knowledge base in a category and caps the
// combined result at the category's chunk limit.
func (c *Collector) searchCategory(ctx context.Context, rctx *RunContext, cat KBCategory) ([]knowledge.Chunk, error) {
	query := cat.ExpandQuery(rctx.Minute.Industry, rctx.Minute.CompanyName, rctx.Minute.Area)

	topK := cat.ChunkLimit()
	if c.topK < topK {
		topK = c.topK
	}

	var chunks []knowledge.Chunk
	var lastErr error
	for _, kbID := range cat.KnowledgeBaseIDs {
		result, err := c.knowledge.Search(ctx, knowledge.SearchRequest{
			Query:           query,
			KnowledgeBaseID: kbID,
			TenantID:        rctx.SearchTenantID,
			TopK:            topK,
		})
		if err != nil {
			lastErr = err
			continue
		}
		chunks = append(chunks, result...)
	}
	if len(chunks) == 0 && lastErr != nil {
		return nil, lastErr
	}

	if limit := cat.ChunkLimit(); len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// loadReferenceData pulls every reference dataset the stages may need.
// Failures log a warning and leave that dataset empty.
func (c *Collector) loadReferenceData(ctx context.Context, rctx *RunContext, cfg *Config) {
	minute := rctx.Minute
	stage2 := cfg.StageFor(2)

	var err error
	if rctx.Pricing, err = c.refdata.Pricing(ctx, minute.Area); err != nil {
		zap.L().Warn("pricing load failed", zap.Error(err))
	}
	if stage2.SimulationEnabled() {
		if rctx.Simulations, err = c.refdata.SimulationParams(ctx, minute.Area, minute.Industry); err != nil {
			zap.L().Warn("simulation params load failed", zap.Error(err))
		}
	}
	if stage2.WageDataEnabled() {
		if rctx.Wages, err = c.refdata.Wages(ctx, minute.Area, minute.Industry); err != nil {
			zap.L().Warn("wage data load failed", zap.Error(err))
		}
	}
	if rctx.Publications, err = c.refdata.Publications(ctx, minute.Industry); err != nil {
		zap.L().Warn("publication records load failed", zap.Error(err))
	}
	if rctx.Campaigns, err = c.refdata.Campaigns(ctx, c.now()); err != nil {
		zap.L().Warn("campaigns load failed", zap.Error(err))
	}
	if rctx.Seasonal, err = c.refdata.SeasonalTrend(ctx, minute.Area, minute.Industry); err != nil {
		zap.L().Warn("seasonal trend load failed", zap.Error(err))
	}
	if rctx.Documents, err = c.refdata.DocumentLinks(ctx); err != nil {
		zap.L().Warn("document links load failed", zap.Error(err))
	}
}
