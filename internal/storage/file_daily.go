package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

const txHashSeparator = ";"

var dailyHeader = []string{
	"wallet_address", "date", "amount_btc", "balance_btc", "fee",
	"first_block", "last_block", "tx_hashes", "price_usd",
	"transaction_value_usd", "transaction_type", "portfolio_pct", "richlist_rank",
}

// SaveDaily replaces the daily aggregate table of a wallet. Rows are written in the given order.
func (s *FileStore) SaveDaily(address string, daily []models.DailyAggregate) error {
	rows := make([][]string, 0, len(daily))
	for i := range daily {
		rows = append(rows, dailyRow(&daily[i]))
	}

	if err := writeCSVAtomic(s.path(dailyDir, address+".csv"), dailyHeader, rows); err != nil {
		return fmt.Errorf("failed to save daily aggregates for %s: %w", address, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"wallet": address,
		"days":   len(daily),
	}).Debug("Saved daily aggregates")
	return nil
}

// LoadDaily reads the daily aggregate table of a wallet
func (s *FileStore) LoadDaily(address string) ([]models.DailyAggregate, error) {
	path := s.path(dailyDir, address+".csv")
	table, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewMissingDataError(address, "daily aggregates")
	}
	if err != nil {
		return nil, apperrors.NewParseError(path, err)
	}

	daily := make([]models.DailyAggregate, 0, len(table.rows))
	for i, row := range table.rows {
		agg, err := parseDailyRow(table, row)
		if err != nil {
			return nil, apperrors.NewParseError(path, fmt.Errorf("row %d: %w", i+2, err))
		}
		if agg.Wallet == "" {
			agg.Wallet = address
		}
		daily = append(daily, agg)
	}
	return daily, nil
}

// ListDailyWallets returns the wallets that have a daily aggregate table
func (s *FileStore) ListDailyWallets() ([]string, error) {
	return listStems(s.path(dailyDir))
}

func dailyRow(d *models.DailyAggregate) []string {
	return []string{
		d.Wallet,
		d.Date.String(),
		d.NetAmountBTC.String(),
		d.BalanceBTC.String(),
		d.FeeBTC.String(),
		formatOptInt(d.FirstBlock),
		formatOptInt(d.LastBlock),
		strings.Join(d.TxHashes, txHashSeparator),
		formatOptFloat(d.PriceUSD),
		formatOptFloat(d.ValueUSD),
		string(d.Type),
		formatOptFloat(d.PortfolioPct),
		strconv.Itoa(d.RichlistRank),
	}
}

func parseDailyRow(table *csvTable, row []string) (models.DailyAggregate, error) {
	var d models.DailyAggregate
	var err error

	d.Wallet = table.get(row, "wallet_address")
	if d.Date, err = types.ParseDate(table.get(row, "date")); err != nil {
		return d, fmt.Errorf("invalid date: %w", err)
	}

	decimals := []struct {
		column string
		dst    *decimal.Decimal
	}{
		{"amount_btc", &d.NetAmountBTC},
		{"balance_btc", &d.BalanceBTC},
		{"fee", &d.FeeBTC},
	}
	for _, f := range decimals {
		raw := table.get(row, f.column)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return d, fmt.Errorf("invalid %s: %w", f.column, err)
		}
		*f.dst = v
	}

	if d.FirstBlock, err = parseOptInt(table.get(row, "first_block")); err != nil {
		return d, fmt.Errorf("invalid first_block: %w", err)
	}
	if d.LastBlock, err = parseOptInt(table.get(row, "last_block")); err != nil {
		return d, fmt.Errorf("invalid last_block: %w", err)
	}
	if hashes := table.get(row, "tx_hashes"); hashes != "" {
		d.TxHashes = strings.Split(hashes, txHashSeparator)
	}

	d.PriceUSD = parseOptFloat(table.get(row, "price_usd"))
	d.ValueUSD = parseOptFloat(table.get(row, "transaction_value_usd"))
	d.PortfolioPct = parseOptFloat(table.get(row, "portfolio_pct"))

	d.Type = types.TransactionType(table.get(row, "transaction_type"))
	if d.Type == "" {
		d.Type = types.ClassifyAmount(d.NetAmount())
	}

	d.RichlistRank = types.RankSentinel
	if rank, err := strconv.Atoi(table.get(row, "richlist_rank")); err == nil && rank > 0 {
		d.RichlistRank = rank
	}
	return d, nil
}
