package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

func newTestFileStore(t *testing.T) *FileStore {
	return NewFileStore(config.DataConfig{BaseDir: t.TempDir(), PriceFile: "prices.csv"}, logging.NewNopLogger())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func ptr(v float64) *float64 { return &v }

func TestFileStore_RawTransactions(t *testing.T) {
	store := newTestFileStore(t)
	height := int64(800000)
	txs := []models.RawTransaction{
		{Hash: "h1", Time: 1700000000, Result: -150000000, Balance: 850000000, Fee: 1200, BlockHeight: &height},
		{Hash: "h2", Time: 1699990000, Result: 1000000000, Balance: 1000000000},
	}

	require.NoError(t, store.SaveRawTransactions("1abc", txs))

	got, err := store.LoadRawTransactions("1abc")
	require.NoError(t, err)
	assert.Equal(t, txs, got)

	wallets, err := store.ListRawWallets()
	require.NoError(t, err)
	assert.Equal(t, []string{"1abc"}, wallets)
}

func TestFileStore_RawTransactions_EmptyAndMissing(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.SaveRawTransactions("1empty", nil))
	_, err := store.LoadRawTransactions("1empty")
	assert.True(t, apperrors.Is(err, apperrors.CategoryMissingData))
}

func TestFileStore_RawTransactions_FloatBlockHeight(t *testing.T) {
	store := newTestFileStore(t)
	writeFile(t, filepath.Join(store.BaseDir(), rawTransactionsDir, "1pandas.csv"),
		"hash,time,result,balance,fee,block_height\nh1,1700000000,5,10,0,812345.0\nh2,1700000001,5,15,0,\n")

	got, err := store.LoadRawTransactions("1pandas")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].BlockHeight)
	assert.Equal(t, int64(812345), *got[0].BlockHeight)
	assert.Nil(t, got[1].BlockHeight)
}

func TestFileStore_LoadPrices_NormalizesSeparators(t *testing.T) {
	store := newTestFileStore(t)
	writeFile(t, store.PriceFilePath(), "Date,Price,Open,High,Low,Vol.,Change %\n"+
		"01/31/2024,\"42,580.1\",\"42,000.0\",\"43,000.0\",\"41,900.0\",1.2K,1.05%\n"+
		"2024-02-01,43000,43000,43000,43000,0,\n"+
		"2024-02-02,n/a,0,0,0,0,\n")

	prices, ok, err := store.LoadPrices()
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, prices, 2)

	assert.Equal(t, "2024-01-31", prices[0].Date.String())
	assert.Equal(t, 42580.1, prices[0].Price)
	assert.Equal(t, 43000.0, prices[0].High)
	require.NotNil(t, prices[0].ChangePct)
	assert.Equal(t, 1.05, *prices[0].ChangePct)
	assert.Nil(t, prices[1].ChangePct)
}

func TestFileStore_Prices_MissingAndRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	prices, ok, err := store.LoadPrices()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, prices)

	in := []models.PriceObservation{
		{Date: mustDate(t, "2024-01-02"), Price: 2, Open: 2, High: 2, Low: 2, Volume: "0", ChangePct: ptr(100)},
		{Date: mustDate(t, "2024-01-01"), Price: 1, Open: 1, High: 1, Low: 1, Volume: "0"},
	}
	require.NoError(t, store.SavePrices(in))

	prices, ok, err = store.LoadPrices()
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, prices, 2)
	assert.Equal(t, "2024-01-01", prices[0].Date.String())
	assert.Equal(t, 100.0, *prices[1].ChangePct)
}

func TestFileStore_Richlist(t *testing.T) {
	store := newTestFileStore(t)

	snapshot, err := store.LatestRichlist()
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.Equal(t, types.RankSentinel, snapshot.Rank("1abc"))

	dir := filepath.Join(store.BaseDir(), rawRichlistDir)
	writeFile(t, filepath.Join(dir, "richlist_20240101.csv"), "rank,btc_address\n1,1old\n")
	writeFile(t, filepath.Join(dir, "richlist_20240315.csv"), "rank,btc_address,last_in,last_out\n1,1new\n2,1second,2024-03-01,\nx,1unranked,,\n")
	writeFile(t, filepath.Join(dir, "notes.csv"), "rank,btc_address\n1,1ignored\n")

	snapshot, err = store.LatestRichlist()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", snapshot.Date.String())
	assert.Equal(t, []string{"1new", "1second", "1unranked"}, snapshot.Addresses())
	assert.Equal(t, 2, snapshot.Rank("1second"))
	assert.Equal(t, types.RankSentinel, snapshot.Rank("1unranked"))
	assert.Equal(t, types.RankSentinel, snapshot.Rank("1old"))
}

func TestFileStore_SaveRichlist_RemovesOlder(t *testing.T) {
	store := newTestFileStore(t)
	dir := filepath.Join(store.BaseDir(), rawRichlistDir)
	writeFile(t, filepath.Join(dir, "richlist_20240101.csv"), "rank,btc_address\n1,1old\n")

	require.NoError(t, store.SaveRichlist(mustDate(t, "2024-05-01"), []models.RichlistEntry{{Rank: 1, Address: "1fresh"}}))

	stems, err := listStems(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"richlist_20240501"}, stems)

	snapshot, err := store.LatestRichlist()
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Rank("1fresh"))
}

func TestFileStore_Daily_RoundTrip(t *testing.T) {
	store := newTestFileStore(t)
	first, last := int64(100), int64(105)
	daily := []models.DailyAggregate{
		{
			Wallet:       "1abc",
			Date:         mustDate(t, "2024-01-01"),
			NetAmountBTC: decimal.RequireFromString("-1.5"),
			BalanceBTC:   decimal.RequireFromString("8.5"),
			FeeBTC:       decimal.RequireFromString("0.00012"),
			FirstBlock:   &first,
			LastBlock:    &last,
			TxHashes:     []string{"h1", "h2"},
			PriceUSD:     ptr(42000),
			ValueUSD:     ptr(-63000),
			Type:         types.TypeSell,
			PortfolioPct: ptr(17.647058823529413),
			RichlistRank: 3,
		},
		{
			Wallet:       "1abc",
			Date:         mustDate(t, "2024-01-02"),
			NetAmountBTC: decimal.RequireFromString("0"),
			BalanceBTC:   decimal.RequireFromString("0"),
			FeeBTC:       decimal.Zero,
			TxHashes:     []string{"h3"},
			Type:         types.TypeTransfer,
			RichlistRank: types.RankSentinel,
		},
	}

	require.NoError(t, store.SaveDaily("1abc", daily))
	got, err := store.LoadDaily("1abc")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].NetAmountBTC.Equal(daily[0].NetAmountBTC))
	assert.Equal(t, daily[0].TxHashes, got[0].TxHashes)
	assert.Equal(t, *daily[0].PortfolioPct, *got[0].PortfolioPct)
	assert.Equal(t, int64(105), *got[0].LastBlock)
	assert.Nil(t, got[1].PriceUSD)
	assert.Nil(t, got[1].PortfolioPct)
	assert.Nil(t, got[1].FirstBlock)
	assert.Equal(t, types.RankSentinel, got[1].RichlistRank)

	// Writing what was read yields the same bytes
	path := filepath.Join(store.BaseDir(), dailyDir, "1abc.csv")
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveDaily("1abc", got))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestFileStore_LoadDaily_Missing(t *testing.T) {
	store := newTestFileStore(t)
	_, err := store.LoadDaily("1none")
	assert.True(t, apperrors.Is(err, apperrors.CategoryMissingData))
}

func TestFileStore_WalletMetrics(t *testing.T) {
	store := newTestFileStore(t)
	m := &models.WalletMetrics{
		Address:          "1abc",
		Rank:             7,
		FirstTransaction: mustDate(t, "2023-01-01"),
		LastTransaction:  mustDate(t, "2024-01-01"),
		TraderType:       types.TraderHolder,
		ROI:              20,
		Volatility:       ptr(12.5),
		LastUpdated:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.SaveWalletMetrics(m))

	got, err := store.LoadWalletMetrics("1abc")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = store.LoadWalletMetrics("1none")
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))
}

func TestFileStore_UpsertSummary(t *testing.T) {
	store := newTestFileStore(t)

	summary, err := store.LoadSummary()
	require.NoError(t, err)
	assert.Empty(t, summary)

	require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: "1a", ROI: 1}))
	require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: "1b", ROI: 2}))
	require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: "1a", ROI: 3}))

	summary, err = store.LoadSummary()
	require.NoError(t, err)
	require.Len(t, summary, 2)
	byAddr := map[string]float64{}
	for _, m := range summary {
		byAddr[m.Address] = m.ROI
	}
	assert.Equal(t, map[string]float64{"1a": 3, "1b": 2}, byAddr)
}

func TestFileStore_UpsertSummary_KeepsRowOrder(t *testing.T) {
	store := newTestFileStore(t)
	for _, addr := range []string{"1a", "1b", "1c"} {
		require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: addr, ROI: 1}))
	}
	before, err := os.ReadFile(store.SummaryPath())
	require.NoError(t, err)

	require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: "1a", ROI: 5}))

	summary, err := store.LoadSummary()
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "1a", summary[0].Address)
	assert.Equal(t, 5.0, summary[0].ROI)
	assert.Equal(t, "1b", summary[1].Address)
	assert.Equal(t, "1c", summary[2].Address)

	// Re-running with unchanged metrics leaves the file untouched
	require.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: "1a", ROI: 1}))
	after, err := os.ReadFile(store.SummaryPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_UpsertSummary_Concurrent(t *testing.T) {
	store := newTestFileStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := []string{"1a", "1b", "1c", "1d"}[i%4]
			assert.NoError(t, store.UpsertSummary(&models.WalletMetrics{Address: addr, Rank: i}))
		}(i)
	}
	wg.Wait()

	summary, err := store.LoadSummary()
	require.NoError(t, err)
	assert.Len(t, summary, 4)

	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), walletMetricsDir))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temporary files must not be left behind")
	}
}
