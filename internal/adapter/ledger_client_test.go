package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/ratelimit"
)

// fakeLedger serves pages from a fixed list of hashes, optionally shifting the
// window by `shift` new transactions after the first page to simulate arrivals.
type fakeLedger struct {
	mu       sync.Mutex
	hashes   []string
	shift    int
	failAt   int // offset that returns 500, -1 disables
	requests []string
	agents   []string
}

func (f *fakeLedger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	f.requests = append(f.requests, r.URL.Path+"?"+r.URL.RawQuery)
	f.agents = append(f.agents, r.Header.Get("User-Agent"))

	if f.failAt >= 0 && offset == f.failAt {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
		return
	}

	hashes := f.hashes
	if offset > 0 && f.shift > 0 {
		// New transactions arrived at the head of the ledger
		fresh := make([]string, 0, f.shift+len(hashes))
		for i := 0; i < f.shift; i++ {
			fresh = append(fresh, fmt.Sprintf("new-%d", i))
		}
		hashes = append(fresh, hashes...)
	}

	var txs []map[string]interface{}
	for i := offset; i < len(hashes) && i < offset+limit; i++ {
		txs = append(txs, map[string]interface{}{
			"hash":         hashes[i],
			"time":         1700000000 - i*60,
			"result":       1000,
			"balance":      100000,
			"fee":          10,
			"block_height": 800000 - i,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"txs": txs})
}

func makeHashes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("tx-%03d", i)
	}
	return out
}

func newTestLedgerClient(url string, pageSize int, agents []string) *LedgerClient {
	return NewLedgerClient(LedgerClientConfig{
		BaseURL:  url,
		PageSize: pageSize,
		Pacer:    ratelimit.NewPacer(ratelimit.PacerConfig{Backoff: ratelimit.NewBackoff(time.Millisecond, time.Millisecond)}),
		Identity: NewIdentityRotator(agents, noProxyConfig()),
	})
}

func testCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

func TestFetchHistory_ShortPageStops(t *testing.T) {
	ledger := &fakeLedger{hashes: makeHashes(12), failAt: -1}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	client := newTestLedgerClient(srv.URL, 5, []string{"agent"})
	txs, err := client.FetchHistory(testCtx(), "1whale")
	require.NoError(t, err)

	assert.Len(t, txs, 12)
	assert.Equal(t, "tx-000", txs[0].Hash)
	assert.Equal(t, []string{
		"/rawaddr/1whale?limit=5&offset=0",
		"/rawaddr/1whale?limit=5&offset=5",
		"/rawaddr/1whale?limit=5&offset=10",
	}, ledger.requests)
	require.NotNil(t, txs[0].BlockHeight)
	assert.Equal(t, int64(800000), *txs[0].BlockHeight)
}

func TestFetchHistory_ExactMultipleNeedsEmptyPage(t *testing.T) {
	ledger := &fakeLedger{hashes: makeHashes(10), failAt: -1}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	txs, err := newTestLedgerClient(srv.URL, 5, nil).FetchHistory(testCtx(), "1whale")
	require.NoError(t, err)
	assert.Len(t, txs, 10)
	assert.Len(t, ledger.requests, 3)
}

func TestFetchHistory_WrapDeduplicates(t *testing.T) {
	// Two new transactions arrive after the first page, so the second page repeats tx-003 and tx-004
	ledger := &fakeLedger{hashes: makeHashes(20), shift: 2, failAt: -1}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	txs, err := newTestLedgerClient(srv.URL, 5, nil).FetchHistory(testCtx(), "1whale")
	require.NoError(t, err)

	assert.Len(t, ledger.requests, 2)
	var hashes []string
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash)
	}
	assert.Equal(t, []string{"tx-000", "tx-001", "tx-002", "tx-003", "tx-004", "tx-005", "tx-006", "tx-007"}, hashes)
}

func TestFetchHistory_NonSuccessReturnsPartial(t *testing.T) {
	ledger := &fakeLedger{hashes: makeHashes(20), failAt: 5}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	txs, err := newTestLedgerClient(srv.URL, 5, nil).FetchHistory(testCtx(), "1whale")
	require.Error(t, err)

	assert.Len(t, txs, 5)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNetwork))
	assert.Equal(t, http.StatusTooManyRequests, apperrors.Categorize(err).Details["upstreamStatus"])
}

func TestFetchHistory_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"txs": [`))
	}))
	defer srv.Close()

	txs, err := newTestLedgerClient(srv.URL, 5, nil).FetchHistory(testCtx(), "1whale")
	assert.Empty(t, txs)
	assert.True(t, apperrors.Is(err, apperrors.CategoryParse))
}

func TestFetchHistory_EmptyWallet(t *testing.T) {
	ledger := &fakeLedger{failAt: -1}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	client := newTestLedgerClient(srv.URL, 5, nil)

	txs, err := client.FetchHistory(testCtx(), "1empty")
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)

	txs, err = client.FetchHistory(testCtx(), "")
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Len(t, ledger.requests, 1)
}

func TestFetchPage_RotatesUserAgent(t *testing.T) {
	ledger := &fakeLedger{hashes: makeHashes(3), failAt: -1}
	srv := httptest.NewServer(ledger)
	defer srv.Close()

	agents := []string{"agent-a", "agent-b"}
	client := newTestLedgerClient(srv.URL, 5, agents)
	for i := 0; i < 10; i++ {
		_, err := client.FetchPage(testCtx(), "1whale", 0, 5)
		require.NoError(t, err)
	}

	for _, ua := range ledger.agents {
		assert.Contains(t, agents, ua)
	}
}

func TestFetchHistory_DedupProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: however many transactions arrive mid-collection, no hash is returned twice
	properties.Property("merged history has unique hashes", prop.ForAll(
		func(total, pageSize, shift int) bool {
			ledger := &fakeLedger{hashes: makeHashes(total), shift: shift, failAt: -1}
			srv := httptest.NewServer(ledger)
			defer srv.Close()

			txs, err := newTestLedgerClient(srv.URL, pageSize, nil).FetchHistory(testCtx(), "1whale")
			if err != nil {
				return false
			}
			seen := map[string]bool{}
			for _, tx := range txs {
				if seen[tx.Hash] {
					return false
				}
				seen[tx.Hash] = true
			}
			return true
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 10),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}
