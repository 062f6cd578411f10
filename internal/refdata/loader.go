// Package refdata loads the auxiliary reference datasets that ground
// proposal generation: media pricing, effect simulation coefficients,
// wage statistics, past publication outcomes, campaigns, seasonal hiring
// trends, and shareable document links.
package refdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/db"
	"github.com/sells-group/proposal-cli/internal/model"
)

// Sentinel values for rows that apply to every area or industry.
const (
	AreaNationwide = "全国"
	IndustryAll    = "全業種"
)

// Source provides the reference datasets the context collector attaches to
// a run.
type Source interface {
	Pricing(ctx context.Context, area string) ([]model.MediaPricing, error)
	SimulationParams(ctx context.Context, area, industry string) ([]model.SimulationParam, error)
	Wages(ctx context.Context, area, industry string) ([]model.WageData, error)
	Publications(ctx context.Context, industry string) ([]model.PublicationRecord, error)
	Campaigns(ctx context.Context, now time.Time) ([]model.Campaign, error)
	SeasonalTrend(ctx context.Context, area, industry string) (*model.SeasonalTrend, error)
	DocumentLinks(ctx context.Context) ([]model.DocumentLink, error)
}

// Loader implements Source over a Postgres pool.
type Loader struct {
	pool db.Pool
}

// NewLoader creates a Loader.
func NewLoader(pool db.Pool) *Loader {
	return &Loader{pool: pool}
}

// Pricing returns plans for the given area plus nationwide plans, cheapest
// plans last within each media.
func (l *Loader) Pricing(ctx context.Context, area string) ([]model.MediaPricing, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, media_name, plan_name, area, price, posting_period, notes
		 FROM media_pricing
		 WHERE area IN ($1, $2)
		 ORDER BY media_name, price DESC`,
		area, AreaNationwide,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query pricing")
	}
	defer rows.Close()

	var out []model.MediaPricing
	for rows.Next() {
		var p model.MediaPricing
		var period, notes *string
		if err := rows.Scan(&p.ID, &p.MediaName, &p.PlanName, &p.Area, &p.Price, &period, &notes); err != nil {
			return nil, eris.Wrap(err, "refdata: scan pricing")
		}
		p.PostingPeriod = deref(period)
		p.Notes = deref(notes)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate pricing")
}

func (l *Loader) SimulationParams(ctx context.Context, area, industry string) ([]model.SimulationParam, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT area, industry, media_name, pv_coefficient, apply_rate, conversion_rate
		 FROM simulation_params
		 WHERE area = $1 AND industry = $2
		 LIMIT 10`,
		area, industry,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query simulation params")
	}
	defer rows.Close()

	var out []model.SimulationParam
	for rows.Next() {
		var p model.SimulationParam
		if err := rows.Scan(&p.Area, &p.Industry, &p.MediaName, &p.PVCoefficient, &p.ApplyRate, &p.ConversionRate); err != nil {
			return nil, eris.Wrap(err, "refdata: scan simulation param")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate simulation params")
}

func (l *Loader) Wages(ctx context.Context, area, industry string) ([]model.WageData, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT area, industry, employment_type, min_wage, avg_wage
		 FROM wage_data
		 WHERE area = $1 AND industry = $2
		 LIMIT 10`,
		area, industry,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query wages")
	}
	defer rows.Close()

	var out []model.WageData
	for rows.Next() {
		var w model.WageData
		if err := rows.Scan(&w.Area, &w.Industry, &w.EmploymentType, &w.MinWage, &w.AvgWage); err != nil {
			return nil, eris.Wrap(err, "refdata: scan wage")
		}
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate wages")
}

// Publications returns past posting outcomes for the minute's industry,
// resolved through the industry to job-category mapping. When the industry
// has no mapping the result is empty rather than cross-industry noise.
func (l *Loader) Publications(ctx context.Context, industry string) ([]model.PublicationRecord, error) {
	if industry == "" {
		return nil, nil
	}

	var category string
	err := l.pool.QueryRow(ctx,
		`SELECT job_category_large FROM job_category_map WHERE $1 LIKE '%' || industry || '%' LIMIT 1`,
		industry,
	).Scan(&category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "refdata: resolve job category")
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, media_name, job_category_large, area, plan_name, headline, apply_count
		 FROM publication_records
		 WHERE job_category_large = $1
		 ORDER BY apply_count DESC
		 LIMIT 10`,
		category,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query publications")
	}
	defer rows.Close()

	var out []model.PublicationRecord
	for rows.Next() {
		var p model.PublicationRecord
		var plan, headline *string
		if err := rows.Scan(&p.ID, &p.MediaName, &p.JobCategoryLarge, &p.Area, &plan, &headline, &p.ApplyCount); err != nil {
			return nil, eris.Wrap(err, "refdata: scan publication")
		}
		p.PlanName = deref(plan)
		p.Headline = deref(headline)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate publications")
}

func (l *Loader) Campaigns(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, media_name, discount_rate, discount_amount, conditions, starts_at, ends_at
		 FROM campaigns
		 WHERE active
		   AND (starts_at IS NULL OR starts_at <= $1)
		   AND (ends_at IS NULL OR ends_at >= $1)
		 ORDER BY ends_at NULLS LAST
		 LIMIT 10`,
		now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		var rate *float64
		var amount *int64
		var cond *string
		if err := rows.Scan(&c.ID, &c.Name, &c.MediaName, &rate, &amount, &cond, &c.StartsAt, &c.EndsAt); err != nil {
			return nil, eris.Wrap(err, "refdata: scan campaign")
		}
		if rate != nil {
			c.DiscountRate = *rate
		}
		if amount != nil {
			c.DiscountAmount = *amount
		}
		c.Conditions = deref(cond)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate campaigns")
}

// SeasonalTrend resolves the hiring-demand trend for an area and industry
// with progressively broader fallbacks: exact match, then the area with all
// industries, then nationwide for the industry, then the nationwide default.
func (l *Loader) SeasonalTrend(ctx context.Context, area, industry string) (*model.SeasonalTrend, error) {
	lookups := []struct {
		area, industry, level string
	}{
		{area, industry, model.TrendMatchExact},
		{area, IndustryAll, model.TrendMatchAreaOnly},
		{AreaNationwide, industry, model.TrendMatchIndustryOnly},
		{AreaNationwide, IndustryAll, model.TrendMatchNationwide},
	}

	for _, lk := range lookups {
		var t model.SeasonalTrend
		var advice *string
		err := l.pool.QueryRow(ctx,
			`SELECT area, industry, season, demand, advice FROM seasonal_trends WHERE area = $1 AND industry = $2`,
			lk.area, lk.industry,
		).Scan(&t.Area, &t.Industry, &t.Season, &t.Demand, &advice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, eris.Wrap(err, "refdata: query seasonal trend")
		}
		t.Advice = deref(advice)
		t.MatchLevel = lk.level
		return &t, nil
	}
	return nil, nil
}

func (l *Loader) DocumentLinks(ctx context.Context) ([]model.DocumentLink, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT category, name, url FROM document_links WHERE active ORDER BY category, name LIMIT 20`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query document links")
	}
	defer rows.Close()

	var out []model.DocumentLink
	for rows.Next() {
		var d model.DocumentLink
		if err := rows.Scan(&d.Category, &d.Name, &d.URL); err != nil {
			return nil, eris.Wrap(err, "refdata: scan document link")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "refdata: iterate document links")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Source = (*Loader)(nil)
