package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whale-tracker/internal/adapter"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

type mockPriceCache struct {
	date  types.Date
	price float64
	set   bool
	err   error
}

func (c *mockPriceCache) SetLatest(ctx context.Context, date types.Date, price float64) error {
	c.date, c.price, c.set = date, price, true
	return nil
}

func (c *mockPriceCache) Latest(ctx context.Context) (types.Date, float64, bool, error) {
	if c.err != nil {
		return types.Date{}, 0, false, c.err
	}
	return c.date, c.price, c.set, nil
}

func point(date string, hour int, price float64) adapter.PricePoint {
	return adapter.PricePoint{Time: day(date).Time().Add(time.Duration(hour) * time.Hour), Price: price}
}

func newTestPriceService(store *memStore, fetcher *mockPriceFetcher, cache LatestPriceCache, now string) *PriceService {
	svc := NewPriceService(store, fetcher, cache, config.PricesConfig{DefaultLookback: 3 * 24 * time.Hour}, nil)
	svc.now = fixedNow(now)
	return svc
}

func TestPriceService_UpdateAppendsNewDays(t *testing.T) {
	store := newMemStore()
	store.prices = []models.PriceObservation{
		{Date: day("2024-01-01"), Price: 100},
		{Date: day("2024-01-02"), Price: 110},
	}
	fetcher := &mockPriceFetcher{points: []adapter.PricePoint{
		point("2024-01-02", 0, 999),
		point("2024-01-03", 0, 121),
		point("2024-01-04", 0, 0),
		point("2024-01-04", 11, 130),
	}}
	cache := &mockPriceCache{}

	added, err := newTestPriceService(store, fetcher, cache, "2024-01-04").Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, []int{3}, fetcher.requested)
	require.Len(t, store.prices, 4)

	assert.Equal(t, 110.0, store.prices[1].Price)
	assert.Nil(t, store.prices[0].ChangePct)
	assert.InDelta(t, 10, *store.prices[1].ChangePct, 1e-9)
	assert.InDelta(t, 10, *store.prices[2].ChangePct, 1e-9)

	last := store.prices[3]
	assert.Equal(t, "2024-01-04", last.Date.String())
	assert.Equal(t, 0.0, last.Price)
	assert.Equal(t, "0", last.Volume)
	assert.InDelta(t, -100, *last.ChangePct, 1e-9)

	assert.True(t, cache.set)
	assert.Equal(t, "2024-01-04", cache.date.String())
}

func TestPriceService_ChangePctAfterZeroPriceIsNil(t *testing.T) {
	prices := []models.PriceObservation{
		{Date: day("2024-01-01"), Price: 0},
		{Date: day("2024-01-02"), Price: 50},
	}
	recomputeChangePct(prices)
	assert.Nil(t, prices[0].ChangePct)
	assert.Nil(t, prices[1].ChangePct)
}

func TestPriceService_UpdateWithoutHistoryUsesLookback(t *testing.T) {
	store := newMemStore()
	fetcher := &mockPriceFetcher{points: []adapter.PricePoint{
		point("2024-01-01", 0, 1),
		point("2024-01-02", 0, 2),
		point("2024-01-03", 0, 3),
		point("2024-01-04", 0, 4),
	}}

	added, err := newTestPriceService(store, fetcher, nil, "2024-01-04").Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, added)
	assert.Equal(t, []int{4}, fetcher.requested)
	assert.Equal(t, 1.0, store.prices[0].Open)
	assert.Equal(t, 4.0, store.prices[3].High)
}

func TestPriceService_UpToDateIsNoop(t *testing.T) {
	store := newMemStore()
	store.prices = []models.PriceObservation{{Date: day("2024-01-04"), Price: 100}}
	fetcher := &mockPriceFetcher{}

	added, err := newTestPriceService(store, fetcher, nil, "2024-01-04").Update(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Empty(t, fetcher.requested)
}

func TestPriceService_FetchErrorKeepsTable(t *testing.T) {
	store := newMemStore()
	store.prices = []models.PriceObservation{{Date: day("2024-01-01"), Price: 100}}
	fetcher := &mockPriceFetcher{err: apperrors.NewNetworkError("prices", 502, nil)}

	_, err := newTestPriceService(store, fetcher, nil, "2024-01-04").Update(context.Background())
	require.Error(t, err)
	assert.Len(t, store.prices, 1)
}

func TestPriceService_SeriesEmptyIsFatal(t *testing.T) {
	svc := newTestPriceService(newMemStore(), &mockPriceFetcher{}, nil, "2024-01-04")
	_, err := svc.Series(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestPriceService_CurrentPrice(t *testing.T) {
	store := newMemStore()
	store.prices = []models.PriceObservation{
		{Date: day("2024-01-02"), Price: 110},
		{Date: day("2024-01-01"), Price: 100},
	}
	ctx := context.Background()

	svc := newTestPriceService(store, &mockPriceFetcher{}, &mockPriceCache{}, "2024-01-04")
	s, err := svc.Series(ctx)
	require.NoError(t, err)

	price, err := svc.CurrentPrice(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 110.0, price)

	cached := newTestPriceService(store, &mockPriceFetcher{}, &mockPriceCache{price: 120, set: true}, "2024-01-04")
	price, err = cached.CurrentPrice(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 120.0, price)

	broken := newTestPriceService(store, &mockPriceFetcher{}, &mockPriceCache{err: errors.New("down")}, "2024-01-04")
	price, err = broken.CurrentPrice(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 110.0, price)
}

func TestPriceSeries_FirstObservationWins(t *testing.T) {
	s := NewPriceSeries([]models.PriceObservation{
		{Date: day("2024-01-02"), Price: 1},
		{Date: day("2024-01-02"), Price: 2},
		{Date: day("2024-01-01"), Price: 3},
	})
	p, ok := s.Lookup(day("2024-01-02"))
	assert.True(t, ok)
	assert.Equal(t, 1.0, p)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "2024-01-01", s.FirstDate().String())
	assert.Nil(t, s.LookupPtr(day("2024-02-01")))
}
