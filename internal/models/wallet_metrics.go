package models

import (
	"time"

	"github.com/whale-tracker/internal/types"
)

// WalletMetrics is a performance and behavior snapshot of one wallet.
// Optional fields are nil when there is not enough priced history to define them.
type WalletMetrics struct {
	Address           string     `json:"address" db:"address"`
	Rank              int        `json:"rank" db:"rank"`
	FirstTransaction  types.Date `json:"firstTransaction" db:"first_transaction"`
	LastTransaction   types.Date `json:"lastTransaction" db:"last_transaction"`
	TotalTransactions int        `json:"totalTransactions" db:"total_transactions"`
	ActiveDays        int        `json:"activeDays" db:"active_days"` // days from first to last activity
	TradingDays       int        `json:"tradingDays" db:"trading_days"`

	TotalBuys        int              `json:"totalBuys" db:"total_buys"`
	TotalSells       int              `json:"totalSells" db:"total_sells"`
	BuyVolumeBTC     float64          `json:"buyVolumeBtc" db:"buy_volume_btc"`
	SellVolumeBTC    float64          `json:"sellVolumeBtc" db:"sell_volume_btc"`
	AvgBuySizeBTC    float64          `json:"avgBuySizeBtc" db:"avg_buy_size_btc"`
	AvgSellSizeBTC   float64          `json:"avgSellSizeBtc" db:"avg_sell_size_btc"`
	TradingFrequency float64          `json:"tradingFrequency" db:"trading_frequency"`
	SignificantSells int              `json:"significantSells" db:"significant_sells"`
	TraderType       types.TraderType `json:"traderType" db:"trader_type"`

	CurrentBalanceBTC float64 `json:"currentBalanceBtc" db:"current_balance_btc"`
	CurrentPriceUSD   float64 `json:"currentPriceUsd" db:"current_price_usd"`
	TotalMoneyIn      float64 `json:"totalMoneyIn" db:"total_money_in"`
	TotalMoneyOut     float64 `json:"totalMoneyOut" db:"total_money_out"`
	NetInvestment     float64 `json:"netInvestment" db:"net_investment"`
	CurrentValue      float64 `json:"currentValue" db:"current_value"`
	ROI               float64 `json:"roi" db:"roi_overall"`
	RealizedPnL       float64 `json:"realizedPnl" db:"realized_pnl"`
	TotalFeesBTC      float64 `json:"totalFeesBtc" db:"total_fees_btc"`

	Volatility         *float64 `json:"volatility,omitempty" db:"volatility"`
	MaxDrawdown        *float64 `json:"maxDrawdown,omitempty" db:"max_drawdown"`
	WinRate            *float64 `json:"winRate,omitempty" db:"win_rate"`
	AvgHoldTimeDays    *float64 `json:"avgHoldTimeDays,omitempty" db:"avg_hold_time_days"`
	BalanceChangeShort *float64 `json:"balanceChangeShort,omitempty" db:"balance_change_short"`
	BalanceChangeLong  *float64 `json:"balanceChangeLong,omitempty" db:"balance_change_long"`

	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}
