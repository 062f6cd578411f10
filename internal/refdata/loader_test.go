package refdata

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/model"
)

func newMockLoader(t *testing.T) (*Loader, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewLoader(mock), mock
}

func TestPricing_IncludesNationwide(t *testing.T) {
	l, mock := newMockLoader(t)

	cols := []string{"id", "media_name", "plan_name", "area", "price", "posting_period", "notes"}
	mock.ExpectQuery(`SELECT .+ FROM media_pricing`).
		WithArgs("東京", AreaNationwide).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("p1", "バイトル", "プランA", "東京", int64(250000), nil, nil).
			AddRow("p2", "バイトル", "プランB", AreaNationwide, int64(180000), nil, nil))

	out, err := l.Pricing(context.Background(), "東京")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(250000), out[0].Price)
	assert.Equal(t, AreaNationwide, out[1].Area)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublications_NoCategoryMatch(t *testing.T) {
	l, mock := newMockLoader(t)

	mock.ExpectQuery(`SELECT job_category_large FROM job_category_map`).
		WithArgs("宇宙開発").
		WillReturnError(pgx.ErrNoRows)

	out, err := l.Publications(context.Background(), "宇宙開発")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublications_EmptyIndustry(t *testing.T) {
	l, _ := newMockLoader(t)

	out, err := l.Publications(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPublications_ResolvesCategory(t *testing.T) {
	l, mock := newMockLoader(t)

	mock.ExpectQuery(`SELECT job_category_large FROM job_category_map`).
		WithArgs("飲食").
		WillReturnRows(pgxmock.NewRows([]string{"job_category_large"}).AddRow("フード"))

	cols := []string{"id", "media_name", "job_category_large", "area", "plan_name", "headline", "apply_count"}
	mock.ExpectQuery(`SELECT .+ FROM publication_records`).
		WithArgs("フード").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("r1", "バイトル", "フード", "東京", nil, nil, 34))

	out, err := l.Publications(context.Background(), "飲食")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 34, out[0].ApplyCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonalTrend_FallbackChain(t *testing.T) {
	l, mock := newMockLoader(t)
	cols := []string{"area", "industry", "season", "demand", "advice"}

	// Exact and area-only lookups miss, industry-only hits.
	mock.ExpectQuery(`SELECT .+ FROM seasonal_trends`).
		WithArgs("東京", "飲食").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM seasonal_trends`).
		WithArgs("東京", IndustryAll).
		WillReturnError(pgx.ErrNoRows)
	advice := "3月掲載開始が有利"
	mock.ExpectQuery(`SELECT .+ FROM seasonal_trends`).
		WithArgs(AreaNationwide, "飲食").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(AreaNationwide, "飲食", "春", "高", &advice))

	trend, err := l.SeasonalTrend(context.Background(), "東京", "飲食")
	require.NoError(t, err)
	require.NotNil(t, trend)
	assert.Equal(t, model.TrendMatchIndustryOnly, trend.MatchLevel)
	assert.Equal(t, "高", trend.Demand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonalTrend_NoMatch(t *testing.T) {
	l, mock := newMockLoader(t)

	for i := 0; i < 4; i++ {
		mock.ExpectQuery(`SELECT .+ FROM seasonal_trends`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)
	}

	trend, err := l.SeasonalTrend(context.Background(), "大阪", "製造")
	require.NoError(t, err)
	assert.Nil(t, trend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaigns_Active(t *testing.T) {
	l, mock := newMockLoader(t)

	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	ends := now.Add(72 * time.Hour)
	cols := []string{"id", "name", "media_name", "discount_rate", "discount_amount", "conditions", "starts_at", "ends_at"}
	rate := 0.2
	mock.ExpectQuery(`SELECT .+ FROM campaigns`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("c1", "秋の掲載割", "バイトル", &rate, nil, nil, nil, &ends))

	out, err := l.Campaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.2, out[0].DiscountRate, 0.001)
	require.NotNil(t, out[0].EndsAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentLinks(t *testing.T) {
	l, mock := newMockLoader(t)

	cols := []string{"category", "name", "url"}
	mock.ExpectQuery(`SELECT .+ FROM document_links`).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("事例集", "飲食業 成功事例", "https://docs.example.com/cases/food"))

	out, err := l.DocumentLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "事例集", out[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}
