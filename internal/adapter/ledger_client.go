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
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/ratelimit"
)

const ledgerSource = "ledger"

// LedgerClient fetches wallet transaction history from a blockchain.info style rawaddr API
type LedgerClient struct {
	baseURL  string
	pageSize int
	client   *resty.Client
	pacer    *ratelimit.Pacer
	identity *IdentityRotator
}

// LedgerClientConfig configures a LedgerClient
type LedgerClientConfig struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
	Pacer    *ratelimit.Pacer
	Identity *IdentityRotator
}

// ledgerResponse is the rawaddr envelope
type ledgerResponse struct {
	Txs []ledgerTx `json:"txs"`
}

type ledgerTx struct {
	Hash        string `json:"hash"`
	Time        int64  `json:"time"`
	Result      int64  `json:"result"`
	Balance     int64  `json:"balance"`
	Fee         int64  `json:"fee"`
	BlockHeight *int64 `json:"block_height"`
}

// NewLedgerClient creates a ledger client
func NewLedgerClient(cfg LedgerClientConfig) *LedgerClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(ratelimit.PacerConfig{Delay: 800 * time.Millisecond})
	}
	identity := cfg.Identity
	if identity == nil {
		identity = NewIdentityRotator(nil, config.ProxyConfig{})
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetTransport(newRotatingTransport())
	client.SetHeader("Accept", "application/json")

	return &LedgerClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		client:   client,
		pacer:    pacer,
		identity: identity,
	}
}

// PageSize returns the number of transactions requested per page
func (c *LedgerClient) PageSize() int {
	return c.pageSize
}

// FetchPage fetches one page of a wallet's history, newest first.
// The pacer's fixed delay is applied after the request whatever its outcome.
func (c *LedgerClient) FetchPage(ctx context.Context, address string, offset, limit int) ([]models.RawTransaction, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	defer func() {
		_ = c.pacer.Pause(ctx) // cancellation is picked up by the caller's next ctx check
	}()

	id, err := c.identity.Next()
	if err != nil {
		return nil, apperrors.NewNetworkError(ledgerSource, 0, err)
	}

	resp, err := c.client.R().
		SetContext(withProxy(ctx, id.Proxy)).
		SetHeader("User-Agent", id.UserAgent).
		SetQueryParams(map[string]string{
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(limit),
		}).
		Get(fmt.Sprintf("%s/rawaddr/%s", c.baseURL, address))
	if err != nil {
		return nil, apperrors.NewNetworkError(ledgerSource, 0, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		c.pacer.Throttled()
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apperrors.NewNetworkError(ledgerSource, resp.StatusCode(),
			fmt.Errorf("%s", truncate(resp.String(), 200)))
	}

	c.pacer.Succeeded()

	var payload ledgerResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, apperrors.NewParseError(ledgerSource, err)
	}

	txs := make([]models.RawTransaction, 0, len(payload.Txs))
	for _, tx := range payload.Txs {
		if tx.Hash == "" {
			return nil, apperrors.NewParseError(ledgerSource, fmt.Errorf("transaction without hash at offset %d", offset))
		}
		txs = append(txs, models.RawTransaction{
			Hash:        tx.Hash,
			Time:        tx.Time,
			Result:      tx.Result,
			Balance:     tx.Balance,
			Fee:         tx.Fee,
			BlockHeight: tx.BlockHeight,
		})
	}
	return txs, nil
}

// FetchHistory pages through a wallet's complete history in ledger order (newest first).
//
// Paging stops on a short page, or when a page repeats hashes already collected,
// which happens when new transactions shift the ledger window mid-collection.
// The result never repeats a hash. On failure the transactions collected so far
// are returned together with the error.
func (c *LedgerClient) FetchHistory(ctx context.Context, address string) ([]models.RawTransaction, error) {
	logger := logging.FromContext(ctx).WithField("wallet", address)
	if address == "" {
		return []models.RawTransaction{}, nil
	}

	collected := make([]models.RawTransaction, 0, c.pageSize)
	seen := make(map[string]struct{})
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return models.DedupeTransactions(collected), err
		}

		logger.WithField("offset", offset).Debug("Fetching ledger page")
		page, err := c.FetchPage(ctx, address, offset, c.pageSize)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"offset":    offset,
				"collected": len(collected),
			}).WithError(err).Error("Ledger request failed, returning partial history")
			return models.DedupeTransactions(collected), err
		}

		wrapped := false
		for _, tx := range page {
			if _, ok := seen[tx.Hash]; ok {
				wrapped = true
			}
			seen[tx.Hash] = struct{}{}
		}
		collected = append(collected, page...)

		if len(page) < c.pageSize {
			logger.WithField("transactions", len(seen)).Info("All transactions received")
			break
		}
		if wrapped {
			logger.WithField("offset", offset).Info("Reached previously seen transactions, stopping")
			break
		}

		offset += c.pageSize
	}

	return models.DedupeTransactions(collected), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
