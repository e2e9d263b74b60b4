package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/whale-tracker/internal/types"
)

// DailyAggregate is the net activity of one wallet on one UTC calendar day
type DailyAggregate struct {
	Wallet       string                `json:"wallet" ch:"wallet" csv:"wallet_address"`
	Date         types.Date            `json:"date" ch:"-" csv:"date"`
	NetAmountBTC decimal.Decimal       `json:"netAmountBtc" ch:"-" csv:"amount_btc"`
	BalanceBTC   decimal.Decimal       `json:"balanceBtc" ch:"-" csv:"balance_btc"`
	FeeBTC       decimal.Decimal       `json:"feeBtc" ch:"-" csv:"fee"`
	FirstBlock   *int64                `json:"firstBlock,omitempty" ch:"first_block" csv:"first_block"`
	LastBlock    *int64                `json:"lastBlock,omitempty" ch:"last_block" csv:"last_block"`
	TxHashes     []string              `json:"txHashes" ch:"tx_hashes" csv:"tx_hashes"`
	PriceUSD     *float64              `json:"priceUsd,omitempty" ch:"price_usd" csv:"price_usd"`
	ValueUSD     *float64              `json:"valueUsd,omitempty" ch:"value_usd" csv:"transaction_value_usd"`
	Type         types.TransactionType `json:"type" ch:"type" csv:"transaction_type"`
	PortfolioPct *float64              `json:"portfolioPct,omitempty" ch:"portfolio_pct" csv:"portfolio_pct"`
	RichlistRank int                   `json:"richlistRank" ch:"richlist_rank" csv:"richlist_rank"`
}

// NetAmount returns the net BTC movement as a float
func (d *DailyAggregate) NetAmount() float64 {
	return d.NetAmountBTC.InexactFloat64()
}

// Balance returns the ending BTC balance as a float
func (d *DailyAggregate) Balance() float64 {
	return d.BalanceBTC.InexactFloat64()
}

// Day returns midnight UTC of the aggregate's date
func (d *DailyAggregate) Day() time.Time {
	return d.Date.Time()
}

// HasPrice reports whether a reference price was matched for the day
func (d *DailyAggregate) HasPrice() bool {
	return d.PriceUSD != nil
}

// FiatBalance returns balance × price, or false when the day is unpriced
func (d *DailyAggregate) FiatBalance() (float64, bool) {
	if d.PriceUSD == nil {
		return 0, false
	}
	return d.Balance() * *d.PriceUSD, true
}
