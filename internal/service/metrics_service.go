package service

import (
	"context"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
	"github.com/whale-tracker/internal/worker"
)

// MetricsStore persists wallet metrics and the cross-wallet summary
type MetricsStore interface {
	SaveWalletMetrics(m *models.WalletMetrics) error
	UpsertSummary(m *models.WalletMetrics) error
	LoadSummary() ([]models.WalletMetrics, error)
}

// MetricsSink mirrors the summary into a database
type MetricsSink interface {
	Upsert(ctx context.Context, m *models.WalletMetrics) error
}

// MetricsService computes and persists wallet metrics
type MetricsService struct {
	engine *MetricsEngine
	daily  DailyStore
	store  MetricsStore
	sink   MetricsSink
	pool   *worker.Pool
	logger *logging.Logger
}

// NewMetricsService creates a metrics service. sink may be nil.
func NewMetricsService(engine *MetricsEngine, daily DailyStore, store MetricsStore, sink MetricsSink, pool *worker.Pool, logger *logging.Logger) *MetricsService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if pool == nil {
		pool = worker.NewPool(1, logger)
	}
	return &MetricsService{
		engine: engine,
		daily:  daily,
		store:  store,
		sink:   sink,
		pool:   pool,
		logger: logger.WithField("stage", types.StageMetrics),
	}
}

// UpdateWallet recomputes one wallet's metrics from its daily aggregates and upserts the summary
func (s *MetricsService) UpdateWallet(ctx context.Context, address string, currentPrice float64) (*models.WalletMetrics, error) {
	daily, err := s.daily.LoadDaily(address)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, apperrors.NewMissingDataError(address, "daily aggregates")
	}

	m := s.engine.ComputeMetrics(address, daily, currentPrice)
	if err := s.store.SaveWalletMetrics(m); err != nil {
		return nil, err
	}
	if err := s.store.UpsertSummary(m); err != nil {
		return nil, err
	}
	if s.sink != nil {
		if err := s.sink.Upsert(ctx, m); err != nil {
			s.logger.WithField("wallet", address).WithError(err).Warn("Failed to mirror wallet metrics")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"wallet":     address,
		"traderType": string(m.TraderType),
		"roi":        m.ROI,
	}).Info("Updated wallet metrics")
	return m, nil
}

// UpdateAll recomputes metrics for every wallet with daily history
func (s *MetricsService) UpdateAll(ctx context.Context, currentPrice float64) (*StageResult, error) {
	wallets, err := s.daily.ListDailyWallets()
	if err != nil {
		return nil, err
	}
	return s.UpdateWallets(ctx, wallets, currentPrice), nil
}

// UpdateWallets recomputes metrics for the given wallets on the worker pool
func (s *MetricsService) UpdateWallets(ctx context.Context, wallets []string, currentPrice float64) *StageResult {
	report := s.pool.Run(ctx, wallets, func(ctx context.Context, wallet string) error {
		_, err := s.UpdateWallet(ctx, wallet, currentPrice)
		return err
	})
	return newStageResult(types.StageMetrics, report, s.logger)
}

// Summary returns the cross-wallet summary
func (s *MetricsService) Summary() ([]models.WalletMetrics, error) {
	return s.store.LoadSummary()
}
