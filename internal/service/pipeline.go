package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
	"github.com/whale-tracker/internal/worker"
)

// RichlistSource provides the latest richlist snapshot
type RichlistSource interface {
	LatestRichlist() (*models.RichlistSnapshot, error)
}

// DefaultStages are run when RunOptions names none. Alerts are opt-in.
var DefaultStages = []types.Stage{
	types.StagePrices,
	types.StageCollect,
	types.StageNormalize,
	types.StageMetrics,
}

// RunOptions selects what a pipeline run does
type RunOptions struct {
	Stages  []types.Stage
	Wallets []string   // Explicit wallets; empty means every richlist wallet
	Since   types.Date // First day considered by alerts; zero uses the configured lookback
}

func (o RunOptions) has(stage types.Stage) bool {
	stages := o.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

// RunResult summarizes one pipeline run
type RunResult struct {
	RunID       string         `json:"runId"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	PricesAdded int            `json:"pricesAdded"`
	Stages      []*StageResult `json:"stages"`
	Alerts      *AlertReport   `json:"alerts,omitempty"`
}

// Stage returns the result of the named stage, or nil if it did not run
func (r *RunResult) Stage(stage types.Stage) *StageResult {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s
		}
	}
	return nil
}

// Pipeline runs the collection and analysis stages in order
type Pipeline struct {
	prices    *PriceService
	richlist  RichlistSource
	collector *CollectorService
	processor *ProcessingService
	metrics   *MetricsService
	alerts    *AlertEvaluator
	pool      *worker.Pool
	logger    *logging.Logger
}

// PipelineDeps wires a pipeline. Alerts may be nil.
type PipelineDeps struct {
	Prices    *PriceService
	Richlist  RichlistSource
	Collector *CollectorService
	Processor *ProcessingService
	Metrics   *MetricsService
	Alerts    *AlertEvaluator
	Pool      *worker.Pool
	Logger    *logging.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	pool := deps.Pool
	if pool == nil {
		pool = worker.NewPool(1, logger)
	}
	return &Pipeline{
		prices:    deps.Prices,
		richlist:  deps.Richlist,
		collector: deps.Collector,
		processor: deps.Processor,
		metrics:   deps.Metrics,
		alerts:    deps.Alerts,
		pool:      pool,
		logger:    logger,
	}
}

// Run executes the selected stages. Per-wallet failures are recorded in the result;
// only setup failures such as an empty price series abort the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.WithField("runId", result.RunID)
	ctx = logging.WithLogger(ctx, logger)
	logger.WithField("wallets", len(opts.Wallets)).Info("Pipeline run started")

	defer func() {
		result.FinishedAt = time.Now().UTC()
	}()

	if opts.has(types.StagePrices) {
		added, err := p.prices.Update(ctx)
		if err != nil {
			return result, err
		}
		result.PricesAdded = added
	}

	snapshot, err := p.richlist.LatestRichlist()
	if err != nil {
		return result, err
	}
	if snapshot.IsEmpty() {
		logger.WithField("rank", types.RankSentinel).Warn("Richlist is empty, every wallet gets the sentinel rank")
	}
	wallets := opts.Wallets
	if len(wallets) == 0 {
		wallets = snapshot.Addresses()
	}
	if len(wallets) == 0 {
		// Without a richlist, reprocess every wallet collected so far.
		if wallets, err = p.processor.raw.ListRawWallets(); err != nil {
			return result, err
		}
		logger.WithField("wallets", len(wallets)).Warn("Richlist is empty, using stored raw histories")
	}
	wallets = worker.PrioritizeWallets(wallets, snapshot.Rank)

	if opts.has(types.StageCollect) {
		report := p.pool.Run(ctx, wallets, func(ctx context.Context, wallet string) error {
			_, err := p.collector.CollectWallet(ctx, wallet)
			return err
		})
		result.Stages = append(result.Stages, newStageResult(types.StageCollect, report, logger.WithField("stage", types.StageCollect)))
	}

	if opts.has(types.StageNormalize) || opts.has(types.StageMetrics) {
		series, err := p.prices.Series(ctx)
		if err != nil {
			return result, err
		}

		if opts.has(types.StageNormalize) {
			report := p.pool.Run(ctx, wallets, func(ctx context.Context, wallet string) error {
				_, err := p.processor.ProcessWallet(ctx, wallet, snapshot, series)
				return err
			})
			result.Stages = append(result.Stages, newStageResult(types.StageNormalize, report, logger.WithField("stage", types.StageNormalize)))
		}

		if opts.has(types.StageMetrics) {
			price, err := p.prices.CurrentPrice(ctx, series)
			if err != nil {
				return result, err
			}
			result.Stages = append(result.Stages, p.metrics.UpdateWallets(ctx, wallets, price))
		}
	}

	if opts.has(types.StageAlerts) && p.alerts != nil {
		since := opts.Since
		if since.IsZero() {
			since = p.alerts.Since()
		}
		report, err := p.alerts.Evaluate(ctx, wallets, since)
		result.Alerts = report
		if err != nil {
			return result, err
		}
	}

	logger.WithField("duration", time.Since(result.StartedAt).String()).Info("Pipeline run finished")
	return result, nil
}
