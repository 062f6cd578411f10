package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/db"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
)

var migrateSeedPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))

		if migrateSeedPath == "" {
			return nil
		}

		ps, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.New("seeding reference data requires the postgres store")
		}
		return seedReferenceData(ctx, ps, migrateSeedPath)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSeedPath, "seed", "", "JSON file with reference data to bulk load")
	rootCmd.AddCommand(migrateCmd)
}

// seedFile is the on-disk shape of a reference data fixture.
type seedFile struct {
	MediaPricing       []model.MediaPricing      `json:"media_pricing"`
	SimulationParams   []model.SimulationParam   `json:"simulation_params"`
	WageData           []model.WageData          `json:"wage_data"`
	JobCategoryMap     []jobCategoryEntry        `json:"job_category_map"`
	PublicationRecords []model.PublicationRecord `json:"publication_records"`
	Campaigns          []model.Campaign          `json:"campaigns"`
	SeasonalTrends     []model.SeasonalTrend     `json:"seasonal_trends"`
	DocumentLinks      []model.DocumentLink      `json:"document_links"`
}

type jobCategoryEntry struct {
	Industry         string `json:"industry"`
	JobCategoryLarge string `json:"job_category_large"`
}

// seedReferenceData bulk loads reference tables from a fixture file using
// the COPY protocol.
func seedReferenceData(ctx context.Context, ps *store.PostgresStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return eris.Wrap(err, "decode seed file")
	}

	pool := ps.Pool()
	total := int64(0)

	load := func(table string, columns []string, rows [][]any) error {
		n, err := db.BulkLoad(ctx, pool, table, columns, rows)
		if err != nil {
			return err
		}
		if n > 0 {
			zap.L().Info("seeded table", zap.String("table", table), zap.Int64("rows", n))
		}
		total += n
		return nil
	}

	pricing := make([][]any, 0, len(seed.MediaPricing))
	for _, p := range seed.MediaPricing {
		pricing = append(pricing, []any{orNewID(p.ID), p.MediaName, p.PlanName, p.Area, p.Price, p.PostingPeriod, p.Notes})
	}
	if err := load("media_pricing",
		[]string{"id", "media_name", "plan_name", "area", "price", "posting_period", "notes"},
		pricing); err != nil {
		return err
	}

	sims := make([][]any, 0, len(seed.SimulationParams))
	for _, p := range seed.SimulationParams {
		sims = append(sims, []any{p.Area, p.Industry, p.MediaName, p.PVCoefficient, p.ApplyRate, p.ConversionRate})
	}
	if err := load("simulation_params",
		[]string{"area", "industry", "media_name", "pv_coefficient", "apply_rate", "conversion_rate"},
		sims); err != nil {
		return err
	}

	wages := make([][]any, 0, len(seed.WageData))
	for _, w := range seed.WageData {
		wages = append(wages, []any{w.Area, w.Industry, w.EmploymentType, w.MinWage, w.AvgWage})
	}
	if err := load("wage_data",
		[]string{"area", "industry", "employment_type", "min_wage", "avg_wage"},
		wages); err != nil {
		return err
	}

	categories := make([][]any, 0, len(seed.JobCategoryMap))
	for _, c := range seed.JobCategoryMap {
		categories = append(categories, []any{c.Industry, c.JobCategoryLarge})
	}
	if err := load("job_category_map",
		[]string{"industry", "job_category_large"},
		categories); err != nil {
		return err
	}

	pubs := make([][]any, 0, len(seed.PublicationRecords))
	for _, p := range seed.PublicationRecords {
		pubs = append(pubs, []any{orNewID(p.ID), p.MediaName, p.JobCategoryLarge, p.Area, p.PlanName, p.Headline, p.ApplyCount})
	}
	if err := load("publication_records",
		[]string{"id", "media_name", "job_category_large", "area", "plan_name", "headline", "apply_count"},
		pubs); err != nil {
		return err
	}

	campaigns := make([][]any, 0, len(seed.Campaigns))
	for _, c := range seed.Campaigns {
		campaigns = append(campaigns, []any{orNewID(c.ID), c.Name, c.MediaName, c.DiscountRate, c.DiscountAmount, c.Conditions, true, c.StartsAt, c.EndsAt})
	}
	if err := load("campaigns",
		[]string{"id", "name", "media_name", "discount_rate", "discount_amount", "conditions", "active", "starts_at", "ends_at"},
		campaigns); err != nil {
		return err
	}

	trends := make([][]any, 0, len(seed.SeasonalTrends))
	for _, t := range seed.SeasonalTrends {
		trends = append(trends, []any{t.Area, t.Industry, t.Season, t.Demand, t.Advice})
	}
	if err := load("seasonal_trends",
		[]string{"area", "industry", "season", "demand", "advice"},
		trends); err != nil {
		return err
	}

	docs := make([][]any, 0, len(seed.DocumentLinks))
	for _, d := range seed.DocumentLinks {
		docs = append(docs, []any{uuid.NewString(), d.Category, d.Name, d.URL, true})
	}
	if err := load("document_links",
		[]string{"id", "category", "name", "url", "active"},
		docs); err != nil {
		return err
	}

	zap.L().Info("seed complete", zap.String("file", path), zap.Int64("total_rows", total))
	return nil
}

func orNewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
