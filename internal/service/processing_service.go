package service

import (
	"context"

	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// DailyStore persists per-wallet daily aggregates
type DailyStore interface {
	SaveDaily(address string, daily []models.DailyAggregate) error
	LoadDaily(address string) ([]models.DailyAggregate, error)
	ListDailyWallets() ([]string, error)
}

// DailySink mirrors daily aggregates into an analytical store
type DailySink interface {
	ReplaceWallet(ctx context.Context, daily []models.DailyAggregate) error
}

// ProcessingService turns stored raw histories into daily aggregates
type ProcessingService struct {
	raw    RawTransactionStore
	daily  DailyStore
	sink   DailySink
	logger *logging.Logger
}

// NewProcessingService creates a processing service. sink may be nil.
func NewProcessingService(raw RawTransactionStore, daily DailyStore, sink DailySink, logger *logging.Logger) *ProcessingService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ProcessingService{
		raw:    raw,
		daily:  daily,
		sink:   sink,
		logger: logger.WithField("stage", types.StageNormalize),
	}
}

// ProcessWallet normalizes and aggregates one wallet. A wallet without raw history
// returns a missing data error and writes nothing.
func (s *ProcessingService) ProcessWallet(ctx context.Context, address string, richlist *models.RichlistSnapshot, prices *PriceSeries) ([]models.DailyAggregate, error) {
	logger := s.logger.WithField("wallet", address)

	raw, err := s.raw.LoadRawTransactions(address)
	if err != nil {
		return nil, err
	}

	daily := Normalize(address, raw, richlist.Rank(address), prices)
	if err := s.daily.SaveDaily(address, daily); err != nil {
		return nil, err
	}

	if s.sink != nil {
		if err := s.sink.ReplaceWallet(ctx, daily); err != nil {
			logger.WithError(err).Warn("Failed to mirror daily aggregates")
		}
	}

	unpriced := 0
	for i := range daily {
		if !daily[i].HasPrice() {
			unpriced++
		}
	}
	logger.WithFields(map[string]interface{}{
		"transactions": len(raw),
		"days":         len(daily),
		"unpricedDays": unpriced,
	}).Info("Processed wallet")
	return daily, nil
}
