// Package report exports the wallet summary as a spreadsheet.
package report

import (
	"io"

	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
	"github.com/xuri/excelize/v2"
)

// SummarySheet is the name of the exported sheet
const SummarySheet = "Summary"

type column struct {
	header string
	value  func(m *models.WalletMetrics) interface{}
}

func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func date(d types.Date) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

var summaryColumns = []column{
	{"Rank", func(m *models.WalletMetrics) interface{} { return m.Rank }},
	{"Wallet", func(m *models.WalletMetrics) interface{} { return m.Address }},
	{"Trader Type", func(m *models.WalletMetrics) interface{} { return string(m.TraderType) }},
	{"First Transaction", func(m *models.WalletMetrics) interface{} { return date(m.FirstTransaction) }},
	{"Last Transaction", func(m *models.WalletMetrics) interface{} { return date(m.LastTransaction) }},
	{"Active Days", func(m *models.WalletMetrics) interface{} { return m.ActiveDays }},
	{"Buys", func(m *models.WalletMetrics) interface{} { return m.TotalBuys }},
	{"Sells", func(m *models.WalletMetrics) interface{} { return m.TotalSells }},
	{"Trades / 30d", func(m *models.WalletMetrics) interface{} { return m.TradingFrequency }},
	{"Significant Sells", func(m *models.WalletMetrics) interface{} { return m.SignificantSells }},
	{"Balance (BTC)", func(m *models.WalletMetrics) interface{} { return m.CurrentBalanceBTC }},
	{"Price (USD)", func(m *models.WalletMetrics) interface{} { return m.CurrentPriceUSD }},
	{"Money In (USD)", func(m *models.WalletMetrics) interface{} { return m.TotalMoneyIn }},
	{"Money Out (USD)", func(m *models.WalletMetrics) interface{} { return m.TotalMoneyOut }},
	{"Net Investment (USD)", func(m *models.WalletMetrics) interface{} { return m.NetInvestment }},
	{"Current Value (USD)", func(m *models.WalletMetrics) interface{} { return m.CurrentValue }},
	{"ROI %", func(m *models.WalletMetrics) interface{} { return m.ROI }},
	{"Realized PnL (USD)", func(m *models.WalletMetrics) interface{} { return m.RealizedPnL }},
	{"Volatility %", func(m *models.WalletMetrics) interface{} { return optional(m.Volatility) }},
	{"Max Drawdown %", func(m *models.WalletMetrics) interface{} { return optional(m.MaxDrawdown) }},
	{"Win Rate %", func(m *models.WalletMetrics) interface{} { return optional(m.WinRate) }},
	{"Avg Hold (days)", func(m *models.WalletMetrics) interface{} { return optional(m.AvgHoldTimeDays) }},
	{"Balance Change Short %", func(m *models.WalletMetrics) interface{} { return optional(m.BalanceChangeShort) }},
	{"Balance Change Long %", func(m *models.WalletMetrics) interface{} { return optional(m.BalanceChangeLong) }},
}

// NewSummaryWorkbook builds a workbook with one header row and one row per wallet
func NewSummaryWorkbook(rows []models.WalletMetrics) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}

	header := make([]interface{}, len(summaryColumns))
	for i, c := range summaryColumns {
		header[i] = c.header
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(summaryColumns), 1)
	if err := f.SetCellStyle(SummarySheet, "A1", lastHeader, bold); err != nil {
		f.Close()
		return nil, err
	}

	for i := range rows {
		values := make([]interface{}, len(summaryColumns))
		for j, c := range summaryColumns {
			values[j] = c.value(&rows[i])
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteSummary writes the summary workbook to w
func WriteSummary(w io.Writer, rows []models.WalletMetrics) error {
	f, err := NewSummaryWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// WriteSummaryXLSX writes the summary workbook to path
func WriteSummaryXLSX(path string, rows []models.WalletMetrics) error {
	f, err := NewSummaryWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}
