package service

import (
	"context"
	"sort"
	"time"

	"github.com/whale-tracker/internal/adapter"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// PriceStore persists the reference price table
type PriceStore interface {
	LoadPrices() ([]models.PriceObservation, bool, error)
	SavePrices(prices []models.PriceObservation) error
}

// PriceFetcher retrieves daily reference prices from an upstream API
type PriceFetcher interface {
	FetchDailyPrices(ctx context.Context, days int) ([]adapter.PricePoint, error)
}

// LatestPriceCache keeps the most recent reference price
type LatestPriceCache interface {
	SetLatest(ctx context.Context, date types.Date, price float64) error
	Latest(ctx context.Context) (types.Date, float64, bool, error)
}

// PriceSeries is an immutable date-indexed view of the reference price table.
// It is safe for concurrent readers.
type PriceSeries struct {
	byDate map[string]float64
	first  types.Date
	last   types.Date
}

// NewPriceSeries indexes observations by calendar date. The first observation of a date wins.
func NewPriceSeries(observations []models.PriceObservation) *PriceSeries {
	s := &PriceSeries{byDate: make(map[string]float64, len(observations))}
	for _, o := range observations {
		key := o.Date.String()
		if _, ok := s.byDate[key]; ok {
			continue
		}
		s.byDate[key] = o.Price
		if s.first.IsZero() || o.Date.Before(s.first) {
			s.first = o.Date
		}
		if s.last.IsZero() || o.Date.After(s.last) {
			s.last = o.Date
		}
	}
	return s
}

// Lookup returns the price of a calendar day
func (s *PriceSeries) Lookup(date types.Date) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.byDate[date.String()]
	return p, ok
}

// LookupPtr returns the price of a calendar day, or nil when the day is not in the series
func (s *PriceSeries) LookupPtr(date types.Date) *float64 {
	p, ok := s.Lookup(date)
	if !ok {
		return nil
	}
	return &p
}

// Len returns the number of distinct days in the series
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byDate)
}

// IsEmpty reports whether the series has no prices
func (s *PriceSeries) IsEmpty() bool {
	return s.Len() == 0
}

// FirstDate returns the earliest day in the series
func (s *PriceSeries) FirstDate() types.Date {
	return s.first
}

// LastDate returns the latest day in the series
func (s *PriceSeries) LastDate() types.Date {
	return s.last
}

// Latest returns the price of the latest day
func (s *PriceSeries) Latest() (types.Date, float64, bool) {
	if s.IsEmpty() {
		return types.Date{}, 0, false
	}
	p, _ := s.Lookup(s.last)
	return s.last, p, true
}

// PriceService maintains the reference price table
type PriceService struct {
	store    PriceStore
	fetcher  PriceFetcher
	cache    LatestPriceCache
	lookback time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

// NewPriceService creates a price service. cache may be nil.
func NewPriceService(store PriceStore, fetcher PriceFetcher, cache LatestPriceCache, cfg config.PricesConfig, logger *logging.Logger) *PriceService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	lookback := cfg.DefaultLookback
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &PriceService{
		store:    store,
		fetcher:  fetcher,
		cache:    cache,
		lookback: lookback,
		logger:   logger.WithField("stage", types.StagePrices),
		now:      time.Now,
	}
}

// Update extends the price table up to today and returns the number of days added.
// Without a price table, DefaultLookback days are fetched.
func (s *PriceService) Update(ctx context.Context) (int, error) {
	existing, found, err := s.store.LoadPrices()
	if err != nil {
		return 0, err
	}

	today := types.DateOf(s.now())
	hasHistory := found && len(existing) > 0

	var lastDate types.Date
	var days int
	if hasHistory {
		lastDate = NewPriceSeries(existing).LastDate()
		days = today.DaysSince(lastDate)
		s.logger.WithField("lastDate", lastDate.String()).Info("Found existing price data")
	} else {
		days = int(s.lookback.Hours() / 24)
		s.logger.WithField("days", days).Info("No existing price data, starting fresh")
	}

	if days <= 0 {
		s.logger.Info("Price data is already up to date")
		return 0, nil
	}

	points, err := s.fetcher.FetchDailyPrices(ctx, days+1)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(points))
	added := make([]models.PriceObservation, 0, len(points))
	for _, p := range points {
		date := types.DateOf(p.Time)
		if hasHistory && !date.After(lastDate) {
			continue
		}
		if _, ok := seen[date.String()]; ok {
			continue
		}
		seen[date.String()] = struct{}{}
		added = append(added, models.PriceObservation{
			Date:   date,
			Price:  p.Price,
			Open:   p.Price,
			High:   p.Price,
			Low:    p.Price,
			Volume: "0",
		})
	}

	if len(added) == 0 {
		s.logger.Info("No new price days returned")
		return 0, nil
	}

	combined := make([]models.PriceObservation, 0, len(existing)+len(added))
	combined = append(combined, existing...)
	combined = append(combined, added...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Date.Before(combined[j].Date)
	})
	recomputeChangePct(combined)

	if err := s.store.SavePrices(combined); err != nil {
		return 0, err
	}

	s.cacheLatest(ctx, combined[len(combined)-1])
	s.logger.WithFields(map[string]interface{}{
		"added": len(added),
		"total": len(combined),
	}).Info("Updated reference prices")
	return len(added), nil
}

// Series loads the price table. An empty table is a fatal setup error.
func (s *PriceService) Series(ctx context.Context) (*PriceSeries, error) {
	observations, _, err := s.store.LoadPrices()
	if err != nil {
		return nil, err
	}
	series := NewPriceSeries(observations)
	if series.IsEmpty() {
		return nil, apperrors.NewFatalSetupError("price series", nil)
	}
	return series, nil
}

// CurrentPrice returns the cached latest price when available, otherwise the series' latest price
func (s *PriceService) CurrentPrice(ctx context.Context, series *PriceSeries) (float64, error) {
	if s.cache != nil {
		_, price, ok, err := s.cache.Latest(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Price cache unavailable, using price table")
		} else if ok {
			return price, nil
		}
	}

	date, price, ok := series.Latest()
	if !ok {
		return 0, apperrors.NewFatalSetupError("price series", nil)
	}
	s.logger.WithField("date", date.String()).Debug("Using latest price from table")
	return price, nil
}

func (s *PriceService) cacheLatest(ctx context.Context, latest models.PriceObservation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetLatest(ctx, latest.Date, latest.Price); err != nil {
		s.logger.WithError(err).Warn("Failed to cache latest price")
	}
}

// recomputeChangePct sets each row's change against the previous row, in percent
func recomputeChangePct(prices []models.PriceObservation) {
	for i := range prices {
		prices[i].ChangePct = nil
		if i == 0 || prices[i-1].Price == 0 {
			continue
		}
		pct := (prices[i].Price - prices[i-1].Price) / prices[i-1].Price * 100
		prices[i].ChangePct = &pct
	}
}
