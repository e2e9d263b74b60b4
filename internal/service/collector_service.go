package service

import (
	"context"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// HistoryFetcher retrieves a wallet's full raw history, newest first.
// On failure it returns what was collected so far together with the error.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, address string) ([]models.RawTransaction, error)
}

// RawTransactionStore persists raw wallet histories
type RawTransactionStore interface {
	SaveRawTransactions(address string, txs []models.RawTransaction) error
	LoadRawTransactions(address string) ([]models.RawTransaction, error)
	ListRawWallets() ([]string, error)
}

// CollectorService harvests raw histories into the raw transaction store
type CollectorService struct {
	fetcher HistoryFetcher
	store   RawTransactionStore
	logger  *logging.Logger
}

// NewCollectorService creates a collector service
func NewCollectorService(fetcher HistoryFetcher, store RawTransactionStore, logger *logging.Logger) *CollectorService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CollectorService{
		fetcher: fetcher,
		store:   store,
		logger:  logger.WithField("stage", types.StageCollect),
	}
}

// CollectWallet fetches and stores one wallet's history and returns the number of stored transactions.
//
// When the fetch fails part way, the partial pages are merged in front of the previously stored
// history so that a throttled run never shrinks the raw file. The fetch error is still returned.
func (s *CollectorService) CollectWallet(ctx context.Context, address string) (int, error) {
	logger := s.logger.WithField("wallet", address)

	txs, fetchErr := s.fetcher.FetchHistory(ctx, address)
	if fetchErr != nil {
		previous, err := s.store.LoadRawTransactions(address)
		if err != nil && !apperrors.Is(err, apperrors.CategoryMissingData) {
			logger.WithError(err).Warn("Could not read previous history for merge")
		}
		partial := len(txs)
		merged := make([]models.RawTransaction, 0, len(txs)+len(previous))
		merged = append(merged, txs...)
		merged = append(merged, previous...)
		txs = models.DedupeTransactions(merged)

		logger.WithFields(map[string]interface{}{
			"fetched":  partial,
			"previous": len(previous),
		}).WithError(fetchErr).Warn("Collection incomplete, keeping partial history")
	}

	if len(txs) > 0 {
		if err := s.store.SaveRawTransactions(address, txs); err != nil {
			return 0, err
		}
	}

	if fetchErr != nil {
		return len(txs), fetchErr
	}
	logger.WithField("transactions", len(txs)).Info("Collected wallet history")
	return len(txs), nil
}
