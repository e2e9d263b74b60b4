package adapter

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/retry"
)

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestFetchDailyPrices(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"prices":[[1704067200000,42000.5],[1704153600000,43100]]}`))
	}))
	defer srv.Close()

	client := NewPriceClient(PriceClientConfig{BaseURL: srv.URL, AssetID: "bitcoin", VsCurrency: "usd", Retry: fastRetry()})
	points, err := client.FetchDailyPrices(testCtx(), 2)
	require.NoError(t, err)

	assert.Equal(t, "days=2&interval=daily&vs_currency=usd", query)
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), points[0].Time)
	assert.Equal(t, 42000.5, points[0].Price)
}

func TestFetchDailyPrices_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"prices":[[1704067200000,42000]]}`))
	}))
	defer srv.Close()

	client := NewPriceClient(PriceClientConfig{BaseURL: srv.URL, AssetID: "bitcoin", VsCurrency: "usd", Retry: fastRetry()})
	points, err := client.FetchDailyPrices(testCtx(), 1)
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchDailyPrices_DoesNotRetryParseErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"prices":[[1704067200000]]}`))
	}))
	defer srv.Close()

	client := NewPriceClient(PriceClientConfig{BaseURL: srv.URL, AssetID: "bitcoin", VsCurrency: "usd", Retry: fastRetry()})
	_, err := client.FetchDailyPrices(testCtx(), 1)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryParse))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchDailyPrices_ZeroDays(t *testing.T) {
	client := NewPriceClient(PriceClientConfig{BaseURL: "http://unused", Retry: fastRetry()})
	points, err := client.FetchDailyPrices(testCtx(), 0)
	assert.NoError(t, err)
	assert.Empty(t, points)
}

func TestFetchSpotPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":67000.25}}`))
	}))
	defer srv.Close()

	client := NewPriceClient(PriceClientConfig{BaseURL: srv.URL, AssetID: "bitcoin", VsCurrency: "usd", Retry: fastRetry()})
	price, err := client.FetchSpotPrice(testCtx())
	require.NoError(t, err)
	assert.Equal(t, 67000.25, price)
}
