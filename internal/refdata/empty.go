package refdata

import (
	"context"
	"time"

	"github.com/sells-group/proposal-cli/internal/model"
)

// Empty is a Source with no data behind it. Used when the store runs on
// SQLite and no reference database is available; stages then work from the
// minute and knowledge search results alone.
type Empty struct{}

func (Empty) Pricing(ctx context.Context, area string) ([]model.MediaPricing, error) {
	return nil, nil
}

func (Empty) SimulationParams(ctx context.Context, area, industry string) ([]model.SimulationParam, error) {
	return nil, nil
}

func (Empty) Wages(ctx context.Context, area, industry string) ([]model.WageData, error) {
	return nil, nil
}

func (Empty) Publications(ctx context.Context, industry string) ([]model.PublicationRecord, error) {
	return nil, nil
}

func (Empty) Campaigns(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	return nil, nil
}

func (Empty) SeasonalTrend(ctx context.Context, area, industry string) (*model.SeasonalTrend, error) {
	return nil, nil
}

func (Empty) DocumentLinks(ctx context.Context) ([]model.DocumentLink, error) {
	return nil, nil
}

var _ Source = Empty{}
