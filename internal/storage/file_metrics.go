package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// metricsColumn maps one summary column to a WalletMetrics field
type metricsColumn struct {
	name   string
	format func(m *models.WalletMetrics) string
	parse  func(m *models.WalletMetrics, v string) error
}

func intColumn(name string, field func(m *models.WalletMetrics) *int) metricsColumn {
	return metricsColumn{
		name:   name,
		format: func(m *models.WalletMetrics) string { return strconv.Itoa(*field(m)) },
		parse: func(m *models.WalletMetrics, v string) error {
			if v == "" {
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(m) = n
			return nil
		},
	}
}

func floatColumn(name string, field func(m *models.WalletMetrics) *float64) metricsColumn {
	return metricsColumn{
		name:   name,
		format: func(m *models.WalletMetrics) string { return formatFloat(*field(m)) },
		parse: func(m *models.WalletMetrics, v string) error {
			if v == "" {
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(m) = f
			return nil
		},
	}
}

func optFloatColumn(name string, field func(m *models.WalletMetrics) **float64) metricsColumn {
	return metricsColumn{
		name:   name,
		format: func(m *models.WalletMetrics) string { return formatOptFloat(*field(m)) },
		parse: func(m *models.WalletMetrics, v string) error {
			*field(m) = parseOptFloat(v)
			return nil
		},
	}
}

func dateColumn(name string, field func(m *models.WalletMetrics) *types.Date) metricsColumn {
	return metricsColumn{
		name: name,
		format: func(m *models.WalletMetrics) string {
			if field(m).IsZero() {
				return ""
			}
			return field(m).String()
		},
		parse: func(m *models.WalletMetrics, v string) error {
			if v == "" {
				return nil
			}
			d, err := types.ParseDate(v)
			if err != nil {
				return err
			}
			*field(m) = d
			return nil
		},
	}
}

var metricsColumns = []metricsColumn{
	{
		name:   "wallet_address",
		format: func(m *models.WalletMetrics) string { return m.Address },
		parse:  func(m *models.WalletMetrics, v string) error { m.Address = v; return nil },
	},
	intColumn("rank", func(m *models.WalletMetrics) *int { return &m.Rank }),
	dateColumn("first_transaction", func(m *models.WalletMetrics) *types.Date { return &m.FirstTransaction }),
	dateColumn("last_transaction", func(m *models.WalletMetrics) *types.Date { return &m.LastTransaction }),
	intColumn("total_transactions", func(m *models.WalletMetrics) *int { return &m.TotalTransactions }),
	intColumn("active_days", func(m *models.WalletMetrics) *int { return &m.ActiveDays }),
	intColumn("trading_days", func(m *models.WalletMetrics) *int { return &m.TradingDays }),
	intColumn("total_buys", func(m *models.WalletMetrics) *int { return &m.TotalBuys }),
	intColumn("total_sells", func(m *models.WalletMetrics) *int { return &m.TotalSells }),
	floatColumn("buy_volume_btc", func(m *models.WalletMetrics) *float64 { return &m.BuyVolumeBTC }),
	floatColumn("sell_volume_btc", func(m *models.WalletMetrics) *float64 { return &m.SellVolumeBTC }),
	floatColumn("avg_buy_size_btc", func(m *models.WalletMetrics) *float64 { return &m.AvgBuySizeBTC }),
	floatColumn("avg_sell_size_btc", func(m *models.WalletMetrics) *float64 { return &m.AvgSellSizeBTC }),
	floatColumn("trading_frequency", func(m *models.WalletMetrics) *float64 { return &m.TradingFrequency }),
	intColumn("significant_sells", func(m *models.WalletMetrics) *int { return &m.SignificantSells }),
	{
		name:   "trader_type",
		format: func(m *models.WalletMetrics) string { return string(m.TraderType) },
		parse:  func(m *models.WalletMetrics, v string) error { m.TraderType = types.TraderType(v); return nil },
	},
	floatColumn("current_balance_btc", func(m *models.WalletMetrics) *float64 { return &m.CurrentBalanceBTC }),
	floatColumn("current_price_usd", func(m *models.WalletMetrics) *float64 { return &m.CurrentPriceUSD }),
	floatColumn("total_money_in", func(m *models.WalletMetrics) *float64 { return &m.TotalMoneyIn }),
	floatColumn("total_money_out", func(m *models.WalletMetrics) *float64 { return &m.TotalMoneyOut }),
	floatColumn("net_investment", func(m *models.WalletMetrics) *float64 { return &m.NetInvestment }),
	floatColumn("current_value", func(m *models.WalletMetrics) *float64 { return &m.CurrentValue }),
	floatColumn("roi_overall", func(m *models.WalletMetrics) *float64 { return &m.ROI }),
	floatColumn("realized_pnl", func(m *models.WalletMetrics) *float64 { return &m.RealizedPnL }),
	floatColumn("total_fees_btc", func(m *models.WalletMetrics) *float64 { return &m.TotalFeesBTC }),
	optFloatColumn("volatility", func(m *models.WalletMetrics) **float64 { return &m.Volatility }),
	optFloatColumn("max_drawdown", func(m *models.WalletMetrics) **float64 { return &m.MaxDrawdown }),
	optFloatColumn("win_rate", func(m *models.WalletMetrics) **float64 { return &m.WinRate }),
	optFloatColumn("avg_hold_time_days", func(m *models.WalletMetrics) **float64 { return &m.AvgHoldTimeDays }),
	optFloatColumn("balance_change_short", func(m *models.WalletMetrics) **float64 { return &m.BalanceChangeShort }),
	optFloatColumn("balance_change_long", func(m *models.WalletMetrics) **float64 { return &m.BalanceChangeLong }),
	{
		name: "last_updated",
		format: func(m *models.WalletMetrics) string {
			if m.LastUpdated.IsZero() {
				return ""
			}
			return m.LastUpdated.UTC().Format(time.RFC3339)
		},
		parse: func(m *models.WalletMetrics, v string) error {
			if v == "" {
				return nil
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return err
			}
			m.LastUpdated = t
			return nil
		},
	},
}

func metricsHeader() []string {
	header := make([]string, len(metricsColumns))
	for i, c := range metricsColumns {
		header[i] = c.name
	}
	return header
}

func metricsRow(m *models.WalletMetrics) []string {
	row := make([]string, len(metricsColumns))
	for i, c := range metricsColumns {
		row[i] = c.format(m)
	}
	return row
}

func readMetricsTable(path string) ([]models.WalletMetrics, error) {
	table, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	out := make([]models.WalletMetrics, 0, len(table.rows))
	for i, row := range table.rows {
		var m models.WalletMetrics
		for _, c := range metricsColumns {
			if err := c.parse(&m, table.get(row, c.name)); err != nil {
				return nil, apperrors.NewParseError(path, fmt.Errorf("row %d column %s: %w", i+2, c.name, err))
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// SaveWalletMetrics writes the per-wallet metrics file
func (s *FileStore) SaveWalletMetrics(m *models.WalletMetrics) error {
	path := s.path(walletMetricsDir, m.Address+".csv")
	if err := writeCSVAtomic(path, metricsHeader(), [][]string{metricsRow(m)}); err != nil {
		return fmt.Errorf("failed to save metrics for %s: %w", m.Address, err)
	}
	return nil
}

// LoadWalletMetrics reads the per-wallet metrics file
func (s *FileStore) LoadWalletMetrics(address string) (*models.WalletMetrics, error) {
	path := s.path(walletMetricsDir, address+".csv")
	rows, err := readMetricsTable(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError("wallet metrics", address)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewNotFoundError("wallet metrics", address)
	}
	return &rows[0], nil
}

// UpsertSummary replaces the wallet's row in place in the cross-wallet summary, appending it when absent.
// Concurrent callers are serialized.
func (s *FileStore) UpsertSummary(m *models.WalletMetrics) error {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()

	path := s.path(walletMetricsDir, summaryFileName)
	existing, err := readMetricsTable(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	rows := make([][]string, 0, len(existing)+1)
	replaced := false
	for i := range existing {
		if existing[i].Address == m.Address {
			if !replaced {
				rows = append(rows, metricsRow(m))
				replaced = true
			}
			continue
		}
		rows = append(rows, metricsRow(&existing[i]))
	}
	if !replaced {
		rows = append(rows, metricsRow(m))
	}

	if err := writeCSVAtomic(path, metricsHeader(), rows); err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

// LoadSummary reads the cross-wallet summary. A missing summary is empty.
func (s *FileStore) LoadSummary() ([]models.WalletMetrics, error) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()

	rows, err := readMetricsTable(s.path(walletMetricsDir, summaryFileName))
	if os.IsNotExist(err) {
		return []models.WalletMetrics{}, nil
	}
	return rows, err
}

// SummaryPath returns the path of the cross-wallet summary file
func (s *FileStore) SummaryPath() string {
	return s.path(walletMetricsDir, summaryFileName)
}
