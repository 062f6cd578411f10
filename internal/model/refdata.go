package model

import "time"

// MediaPricing is one advertised plan for a recruitment media product.
type MediaPricing struct {
	ID            string `json:"id"`
	MediaName     string `json:"media_name"`
	PlanName      string `json:"plan_name"`
	Area          string `json:"area"`
	Price         int64  `json:"price"`
	PostingPeriod string `json:"posting_period,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// SimulationParam holds effect-simulation coefficients for an area and
// industry combination.
type SimulationParam struct {
	Area           string  `json:"area"`
	Industry       string  `json:"industry"`
	MediaName      string  `json:"media_name"`
	PVCoefficient  float64 `json:"pv_coefficient"`
	ApplyRate      float64 `json:"apply_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}

// WageData is a regional wage statistic row.
type WageData struct {
	Area           string `json:"area"`
	Industry       string `json:"industry"`
	EmploymentType string `json:"employment_type"`
	MinWage        int64  `json:"min_wage"`
	AvgWage        int64  `json:"avg_wage"`
}

// PublicationRecord is a past posting outcome used as supporting evidence
// for plan recommendations.
type PublicationRecord struct {
	ID               string `json:"id"`
	MediaName        string `json:"media_name"`
	JobCategoryLarge string `json:"job_category_large"`
	Area             string `json:"area"`
	PlanName         string `json:"plan_name,omitempty"`
	Headline         string `json:"headline,omitempty"`
	ApplyCount       int    `json:"apply_count"`
}

// Campaign is an active discount campaign on a media product.
type Campaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	MediaName      string     `json:"media_name"`
	DiscountRate   float64    `json:"discount_rate,omitempty"`
	DiscountAmount int64      `json:"discount_amount,omitempty"`
	Conditions     string     `json:"conditions,omitempty"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
}

// Seasonal trend match levels, most to least specific.
const (
	TrendMatchExact        = "exact"
	TrendMatchAreaOnly     = "area_only"
	TrendMatchIndustryOnly = "industry_only"
	TrendMatchNationwide   = "nationwide"
)

// SeasonalTrend describes hiring-demand seasonality for an area and industry.
type SeasonalTrend struct {
	Area       string `json:"area"`
	Industry   string `json:"industry"`
	Season     string `json:"season"`
	Demand     string `json:"demand"`
	Advice     string `json:"advice,omitempty"`
	MatchLevel string `json:"match_level,omitempty"`
}

// DocumentLink points at a shareable sales support document.
type DocumentLink struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}
