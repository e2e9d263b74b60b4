package storage

import (
	"context"
	"sort"

	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// FileQueries serves read queries from the file store with the same shape as the database repositories
type FileQueries struct {
	store *FileStore
}

// NewFileQueries creates a read-only query view over the file store
func NewFileQueries(store *FileStore) *FileQueries {
	return &FileQueries{store: store}
}

// List returns the summary ordered by rank
func (q *FileQueries) List(ctx context.Context) ([]models.WalletMetrics, error) {
	rows, err := q.store.LoadSummary()
	if err != nil {
		return nil, err
	}
	sortByRank(rows)
	return rows, nil
}

// Get returns one wallet's metrics
func (q *FileQueries) Get(ctx context.Context, address string) (*models.WalletMetrics, error) {
	return q.store.LoadWalletMetrics(address)
}

// GetRange returns a wallet's daily aggregates between from and to inclusive. Zero bounds are open.
func (q *FileQueries) GetRange(ctx context.Context, wallet string, from, to types.Date) ([]models.DailyAggregate, error) {
	daily, err := q.store.LoadDaily(wallet)
	if err != nil {
		return nil, err
	}
	out := make([]models.DailyAggregate, 0, len(daily))
	for _, d := range daily {
		if !from.IsZero() && d.Date.Before(from) {
			continue
		}
		if !to.IsZero() && d.Date.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func sortByRank(rows []models.WalletMetrics) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].Address < rows[j].Address
	})
}
