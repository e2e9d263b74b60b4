package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
)

func rawTxs(hashes ...string) []models.RawTransaction {
	out := make([]models.RawTransaction, len(hashes))
	for i, h := range hashes {
		out[i] = models.RawTransaction{Hash: h, Time: int64(1_700_000_000 - i*60), Result: 1000, Balance: 5000}
	}
	return out
}

func TestCollectorService_StoresFullHistory(t *testing.T) {
	store := newMemStore()
	fetcher := &mockFetcher{histories: map[string][]models.RawTransaction{"w1": rawTxs("c", "b", "a")}}

	n, err := NewCollectorService(fetcher, store, nil).CollectWallet(context.Background(), "w1")
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, rawTxs("c", "b", "a"), store.raw["w1"])
}

func TestCollectorService_EmptyHistoryWritesNothing(t *testing.T) {
	store := newMemStore()
	fetcher := &mockFetcher{histories: map[string][]models.RawTransaction{}}

	n, err := NewCollectorService(fetcher, store, nil).CollectWallet(context.Background(), "w1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotContains(t, store.raw, "w1")
}

func TestCollectorService_PartialMergesWithStoredHistory(t *testing.T) {
	store := newMemStore()
	store.raw["w1"] = rawTxs("c", "b", "a")
	fetchErr := apperrors.NewNetworkError("ledger", 429, nil)
	fetcher := &mockFetcher{
		histories: map[string][]models.RawTransaction{"w1": rawTxs("e", "d", "c")},
		errs:      map[string]error{"w1": fetchErr},
	}

	n, err := NewCollectorService(fetcher, store, nil).CollectWallet(context.Background(), "w1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNetwork))
	assert.Equal(t, 5, n)

	var hashes []string
	for _, tx := range store.raw["w1"] {
		hashes = append(hashes, tx.Hash)
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, hashes)
}

func TestCollectorService_PartialWithoutPreviousHistory(t *testing.T) {
	store := newMemStore()
	fetcher := &mockFetcher{
		histories: map[string][]models.RawTransaction{"w1": rawTxs("b", "a")},
		errs:      map[string]error{"w1": apperrors.NewParseError("ledger", nil)},
	}

	n, err := NewCollectorService(fetcher, store, nil).CollectWallet(context.Background(), "w1")
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.raw["w1"], 2)
}
