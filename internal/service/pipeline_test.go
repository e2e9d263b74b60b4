package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
	"github.com/whale-tracker/internal/worker"
)

type pipelineFixture struct {
	store    *memStore
	fetcher  *mockFetcher
	sender   *mockSender
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	store := newMemStore()
	store.prices = []models.PriceObservation{
		{Date: day("2024-01-05"), Price: 40000},
		{Date: day("2024-01-10"), Price: 45000},
	}
	store.richlist = models.NewRichlistSnapshot(day("2024-01-10"), []models.RichlistEntry{
		{Rank: 2, Address: "w1"},
		{Rank: 1, Address: "w2"},
		{Rank: 3, Address: "w3"},
	})

	fetcher := &mockFetcher{
		histories: map[string][]models.RawTransaction{
			"w1": {{Hash: "w1-a", Time: unix("2024-01-05"), Result: 100_000_000, Balance: 100_000_000}},
			"w2": {{Hash: "w2-a", Time: unix("2024-01-05"), Result: 200_000_000, Balance: 200_000_000}},
		},
		errs: map[string]error{"w2": apperrors.NewNetworkError("ledger", 429, nil)},
	}
	sender := &mockSender{}

	pool := worker.NewPool(1, nil)
	prices := newTestPriceService(store, &mockPriceFetcher{}, nil, "2024-01-10")
	alerts := NewAlertEvaluator(testAlertsConfig(), store, store, sender, nil)
	alerts.now = fixedNow("2024-01-10")
	alerts.cfg.Lookback = 0

	p := NewPipeline(PipelineDeps{
		Prices:    prices,
		Richlist:  store,
		Collector: NewCollectorService(fetcher, store, nil),
		Processor: NewProcessingService(store, store, nil, nil),
		Metrics:   NewMetricsService(newTestEngine(), store, store, nil, pool, nil),
		Alerts:    alerts,
		Pool:      pool,
	})
	return &pipelineFixture{store: store, fetcher: fetcher, sender: sender, pipeline: p}
}

func TestPipeline_RunIsolatesWalletFailures(t *testing.T) {
	f := newPipelineFixture(t)

	result, err := f.pipeline.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, []string{"w2", "w1", "w3"}, f.fetcher.calls)

	collect := result.Stage(types.StageCollect)
	require.NotNil(t, collect)
	assert.Equal(t, []string{"w1", "w3"}, collect.Processed)
	assert.Contains(t, collect.Failed, "w2")
	assert.True(t, collect.HasFailures())

	normalize := result.Stage(types.StageNormalize)
	require.NotNil(t, normalize)
	assert.ElementsMatch(t, []string{"w1", "w2"}, normalize.Processed)
	assert.Contains(t, normalize.Skipped, "w3")
	assert.Empty(t, normalize.Failed)

	metrics := result.Stage(types.StageMetrics)
	require.NotNil(t, metrics)
	assert.ElementsMatch(t, []string{"w1", "w2"}, metrics.Processed)
	assert.Contains(t, metrics.Skipped, "w3")

	assert.Len(t, f.store.summary, 2)
	w1 := f.store.metrics["w1"]
	require.NotNil(t, w1)
	assert.Equal(t, 2, w1.Rank)
	assert.InDelta(t, 12.5, w1.ROI, 1e-9)

	assert.Nil(t, result.Stage(types.StageAlerts))
	assert.Nil(t, result.Alerts)
	assert.Empty(t, f.sender.sent)
}

func TestPipeline_ExplicitWalletsAndStages(t *testing.T) {
	f := newPipelineFixture(t)

	result, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages:  []types.Stage{types.StageCollect, types.StageNormalize},
		Wallets: []string{"w1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"w1"}, f.fetcher.calls)
	assert.Len(t, result.Stages, 2)
	assert.Nil(t, result.Stage(types.StageMetrics))
	assert.Contains(t, f.store.daily, "w1")
	assert.Empty(t, f.store.summary)
}

func TestPipeline_AlertsStage(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.daily["w1"] = []models.DailyAggregate{aggregate("2024-01-10", 1, 1, nil)}

	result, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages:  []types.Stage{types.StageAlerts},
		Wallets: []string{"w1"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Alerts)
	assert.Equal(t, 1, result.Alerts.Delivered)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, types.AlertUrgent, f.sender.sent[0].Level)
}

func TestPipeline_AlertsStageSkipsUnreadableWallet(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.daily["w2"] = []models.DailyAggregate{walletAggregate("w2", "2024-01-10", 1, 1, nil)}
	f.store.dailyErr = map[string]error{"w1": apperrors.NewParseError("w1.csv", errors.New("bad date"))}

	result, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages:  []types.Stage{types.StageAlerts},
		Wallets: []string{"w1", "w2"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Alerts)
	assert.Contains(t, result.Alerts.Errors, "w1")
	assert.Equal(t, 1, result.Alerts.Delivered)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "w2", f.sender.sent[0].Wallet)
}

func TestPipeline_EmptyRichlistWarnsWithExplicitWallets(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.richlist = models.NewRichlistSnapshot(types.Date{}, nil)

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.LevelWarn, logging.FormatJSON)
	logger.SetOutput(&buf)
	f.pipeline.logger = logger

	_, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages:  []types.Stage{types.StageCollect, types.StageNormalize},
		Wallets: []string{"w1"},
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Richlist is empty")
	require.NotEmpty(t, f.store.daily["w1"])
	assert.Equal(t, types.RankSentinel, f.store.daily["w1"][0].RichlistRank)
}

func TestPipeline_EmptyPriceSeriesIsFatal(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.prices = nil

	_, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages: []types.Stage{types.StageNormalize},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Empty(t, f.store.daily)
}

func TestPipeline_EmptyRichlistFallsBackToRawWallets(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.richlist = models.NewRichlistSnapshot(types.Date{}, nil)
	f.store.raw["stored"] = []models.RawTransaction{{Hash: "s", Time: unix("2024-01-05"), Result: 5, Balance: 5}}

	result, err := f.pipeline.Run(context.Background(), RunOptions{
		Stages: []types.Stage{types.StageNormalize},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stored"}, result.Stage(types.StageNormalize).Processed)
	assert.Equal(t, types.RankSentinel, f.store.daily["stored"][0].RichlistRank)
}

func TestMetricsService_UpdateAll(t *testing.T) {
	store := newMemStore()
	store.daily["w1"] = []models.DailyAggregate{aggregate("2024-01-01", 1, 1, ptrFloat(10000))}
	store.daily["w2"] = []models.DailyAggregate{}

	svc := NewMetricsService(newTestEngine(), store, store, nil, worker.NewPool(2, nil), nil)
	result, err := svc.UpdateAll(context.Background(), 12000)
	require.NoError(t, err)

	assert.Equal(t, []string{"w1"}, result.Processed)
	assert.Contains(t, result.Skipped, "w2")

	summary, err := svc.Summary()
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.InDelta(t, 20, summary[0].ROI, 1e-9)

	// A second update replaces the summary row rather than adding one.
	_, err = svc.UpdateWallet(context.Background(), "w1", 15000)
	require.NoError(t, err)
	summary, _ = svc.Summary()
	require.Len(t, summary, 1)
	assert.InDelta(t, 50, summary[0].ROI, 1e-9)
}
