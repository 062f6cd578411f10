package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/pipeline"
	"github.com/sells-group/proposal-cli/internal/refdata"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/adminapi"
	anthropicpkg "github.com/sells-group/proposal-cli/pkg/anthropic"
	"github.com/sells-group/proposal-cli/pkg/knowledge"
)

// pipelineEnv holds the initialized store, clients, and the pipeline needed
// by the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Resolver *pipeline.Resolver
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "proposal.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, the knowledge and admin API clients, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	kbClient := knowledge.NewClient(cfg.Knowledge.BaseURL, cfg.Knowledge.InternalSecret,
		knowledge.WithRateLimit(cfg.Knowledge.RateLimitRPS),
	)

	// Without an admin API every tenant resolves to the default pipeline
	// configuration.
	var adminClient adminapi.Client
	if cfg.AdminAPI.BaseURL != "" {
		adminClient = adminapi.NewClient(cfg.AdminAPI.BaseURL, cfg.AdminAPI.InternalSecret)
	} else {
		zap.L().Warn("admin API not configured, tenants get the default pipeline config")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	// Reference data needs the Postgres pool; SQLite runs get an empty source.
	var rd refdata.Source = refdata.Empty{}
	if ps, ok := st.(*store.PostgresStore); ok {
		rd = refdata.NewLoader(ps.Pool())
	} else {
		zap.L().Info("reference data disabled for non-postgres store")
	}

	cacheTTL := time.Duration(cfg.Pipeline.ConfigCacheTTLSecs) * time.Second
	resolver := pipeline.NewResolver(adminClient, pipeline.NewConfigCache(cacheTTL))
	collector := pipeline.NewCollector(st, kbClient, rd,
		cfg.Pipeline.SuperTenantID, cfg.Knowledge.TopK, cfg.Pipeline.MaxSearchConc)

	p := pipeline.New(resolver, collector, st, anthropicClient, pipeline.Defaults{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		Temperature:   cfg.Anthropic.Temperature,
		StreamTimeout: time.Duration(cfg.Anthropic.StreamTimeoutSecs) * time.Second,
	})

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Resolver: resolver,
	}, nil
}
