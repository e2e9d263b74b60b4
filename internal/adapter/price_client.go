package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/ratelimit"
	"github.com/whale-tracker/internal/retry"
)

const priceSource = "prices"

// PricePoint is one reference price sample
type PricePoint struct {
	Time  time.Time
	Price float64
}

// PriceClient fetches reference prices from a CoinGecko style API
type PriceClient struct {
	baseURL    string
	assetID    string
	vsCurrency string
	client     *resty.Client
	pacer      *ratelimit.Pacer
	retry      *retry.RetryConfig
}

// PriceClientConfig configures a PriceClient
type PriceClientConfig struct {
	BaseURL    string
	APIKey     string
	AssetID    string
	VsCurrency string
	Timeout    time.Duration
	Pacer      *ratelimit.Pacer
	Retry      *retry.RetryConfig
}

// marketChartResponse holds [epoch-ms, price] pairs
type marketChartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// NewPriceClient creates a price client
func NewPriceClient(cfg PriceClientConfig) *PriceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(ratelimit.PacerConfig{})
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	if retryCfg.ShouldRetry == nil {
		retryCfg.ShouldRetry = apperrors.IsRetryable
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-cg-demo-api-key", cfg.APIKey)
	}

	return &PriceClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		assetID:    cfg.AssetID,
		vsCurrency: cfg.VsCurrency,
		client:     client,
		pacer:      pacer,
		retry:      retryCfg,
	}
}

// FetchDailyPrices returns daily prices for the last days days, oldest first
func (c *PriceClient) FetchDailyPrices(ctx context.Context, days int) ([]PricePoint, error) {
	if days <= 0 {
		return nil, nil
	}

	var points []PricePoint
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		body, err := c.get(ctx, fmt.Sprintf("/coins/%s/market_chart", c.assetID), map[string]string{
			"vs_currency": c.vsCurrency,
			"days":        strconv.Itoa(days),
			"interval":    "daily",
		})
		if err != nil {
			return err
		}

		var payload marketChartResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return apperrors.NewParseError(priceSource, err)
		}

		points = points[:0]
		for i, pair := range payload.Prices {
			if len(pair) < 2 {
				return apperrors.NewParseError(priceSource, fmt.Errorf("price entry %d has %d fields", i, len(pair)))
			}
			points = append(points, PricePoint{
				Time:  time.UnixMilli(int64(pair[0])).UTC(),
				Price: pair[1],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"asset":  c.assetID,
		"days":   days,
		"points": len(points),
	}).Info("Fetched reference prices")
	return points, nil
}

// FetchSpotPrice returns the current reference price
func (c *PriceClient) FetchSpotPrice(ctx context.Context) (float64, error) {
	var price float64
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		body, err := c.get(ctx, "/simple/price", map[string]string{
			"ids":           c.assetID,
			"vs_currencies": c.vsCurrency,
		})
		if err != nil {
			return err
		}

		var payload map[string]map[string]float64
		if err := json.Unmarshal(body, &payload); err != nil {
			return apperrors.NewParseError(priceSource, err)
		}
		p, ok := payload[c.assetID][c.vsCurrency]
		if !ok {
			return apperrors.NewParseError(priceSource, fmt.Errorf("no %s price for %s", c.vsCurrency, c.assetID))
		}
		price = p
		return nil
	})
	return price, err
}

func (c *PriceClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	defer func() {
		_ = c.pacer.Pause(ctx)
	}()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.baseURL + path)
	if err != nil {
		return nil, apperrors.NewNetworkError(priceSource, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apperrors.NewNetworkError(priceSource, resp.StatusCode(),
			fmt.Errorf("%s", truncate(resp.String(), 200)))
	}
	return resp.Body(), nil
}
