package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/whale-tracker/internal/adapter"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// Mock stores for testing

type memStore struct {
	mu       sync.Mutex
	raw      map[string][]models.RawTransaction
	daily    map[string][]models.DailyAggregate
	dailyErr map[string]error
	metrics  map[string]*models.WalletMetrics
	summary  []models.WalletMetrics
	prices   []models.PriceObservation
	richlist *models.RichlistSnapshot
}

func newMemStore() *memStore {
	return &memStore{
		raw:      map[string][]models.RawTransaction{},
		daily:    map[string][]models.DailyAggregate{},
		metrics:  map[string]*models.WalletMetrics{},
		richlist: models.NewRichlistSnapshot(types.Date{}, nil),
	}
}

func (m *memStore) SaveRawTransactions(address string, txs []models.RawTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[address] = append([]models.RawTransaction(nil), txs...)
	return nil
}

func (m *memStore) LoadRawTransactions(address string) ([]models.RawTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs, ok := m.raw[address]
	if !ok {
		return nil, apperrors.NewMissingDataError(address, "raw transactions")
	}
	return txs, nil
}

func (m *memStore) ListRawWallets() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.raw), nil
}

func (m *memStore) SaveDaily(address string, daily []models.DailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[address] = daily
	return nil
}

func (m *memStore) LoadDaily(address string) ([]models.DailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dailyErr[address]; err != nil {
		return nil, err
	}
	daily, ok := m.daily[address]
	if !ok {
		return nil, apperrors.NewMissingDataError(address, "daily aggregates")
	}
	return daily, nil
}

func (m *memStore) ListDailyWallets() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.daily), nil
}

func (m *memStore) SaveWalletMetrics(wm *models.WalletMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[wm.Address] = wm
	return nil
}

func (m *memStore) UpsertSummary(wm *models.WalletMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.summary[:0]
	for _, row := range m.summary {
		if row.Address != wm.Address {
			out = append(out, row)
		}
	}
	m.summary = append(out, *wm)
	return nil
}

func (m *memStore) LoadSummary() ([]models.WalletMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WalletMetrics(nil), m.summary...), nil
}

func (m *memStore) LoadPrices() ([]models.PriceObservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prices, m.prices != nil, nil
}

func (m *memStore) SavePrices(prices []models.PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = prices
	return nil
}

func (m *memStore) LatestRichlist() (*models.RichlistSnapshot, error) {
	return m.richlist, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type mockFetcher struct {
	histories map[string][]models.RawTransaction
	errs      map[string]error
	calls     []string
	mu        sync.Mutex
}

func (f *mockFetcher) FetchHistory(ctx context.Context, address string) ([]models.RawTransaction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, address)
	f.mu.Unlock()
	return f.histories[address], f.errs[address]
}

type mockPriceFetcher struct {
	points    []adapter.PricePoint
	err       error
	requested []int
}

func (f *mockPriceFetcher) FetchDailyPrices(ctx context.Context, days int) ([]adapter.PricePoint, error) {
	f.requested = append(f.requested, days)
	return f.points, f.err
}

type mockSender struct {
	sent []*models.Alert
	err  error
}

func (s *mockSender) Send(ctx context.Context, alert *models.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, alert)
	return nil
}

func day(s string) types.Date {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func unix(s string) int64 {
	return day(s).Time().Unix()
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt(v int64) *int64 { return &v }

func series(prices map[string]float64) *PriceSeries {
	obs := make([]models.PriceObservation, 0, len(prices))
	for d, p := range prices {
		obs = append(obs, models.PriceObservation{Date: day(d), Price: p})
	}
	return NewPriceSeries(obs)
}

func fixedNow(s string) func() time.Time {
	t := day(s).Time().Add(12 * time.Hour)
	return func() time.Time { return t }
}
