package service

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// SatoshiToBTC converts an integer satoshi amount to BTC exactly
func SatoshiToBTC(sat int64) decimal.Decimal {
	return decimal.New(sat, -8)
}

// NormalizedTransaction is one raw transaction converted to BTC and priced
type NormalizedTransaction struct {
	Wallet       string
	Hash         string
	Timestamp    time.Time
	Date         types.Date
	AmountBTC    decimal.Decimal
	BalanceBTC   decimal.Decimal
	FeeBTC       decimal.Decimal
	BlockHeight  *int64
	PriceUSD     *float64
	ValueUSD     *float64
	Type         types.TransactionType
	PortfolioPct *float64
	RichlistRank int

	seq int // position in the raw history
}

// portfolioPct returns |amount| / balance × 100, or nil when the balance is zero
func portfolioPct(amount, balance decimal.Decimal) *float64 {
	if balance.IsZero() {
		return nil
	}
	pct := math.Abs(amount.InexactFloat64()) / balance.InexactFloat64() * 100
	return &pct
}

func fiatValue(amount decimal.Decimal, price *float64) *float64 {
	if price == nil {
		return nil
	}
	v := amount.InexactFloat64() * *price
	return &v
}

// NormalizeTransactions converts raw entries of one wallet and orders them chronologically.
// Ties on timestamp are broken by block height (unconfirmed last), then by raw position.
func NormalizeTransactions(address string, raw []models.RawTransaction, rank int, prices *PriceSeries) []NormalizedTransaction {
	if rank <= 0 {
		rank = types.RankSentinel
	}

	out := make([]NormalizedTransaction, 0, len(raw))
	for i := range raw {
		tx := &raw[i]
		amount := SatoshiToBTC(tx.Result)
		balance := SatoshiToBTC(tx.Balance)
		date := tx.Date()
		price := prices.LookupPtr(date)

		out = append(out, NormalizedTransaction{
			Wallet:       address,
			Hash:         tx.Hash,
			Timestamp:    tx.Timestamp(),
			Date:         date,
			AmountBTC:    amount,
			BalanceBTC:   balance,
			FeeBTC:       SatoshiToBTC(tx.Fee),
			BlockHeight:  tx.BlockHeight,
			PriceUSD:     price,
			ValueUSD:     fiatValue(amount, price),
			Type:         types.ClassifyAmount(amount.InexactFloat64()),
			PortfolioPct: portfolioPct(amount, balance),
			RichlistRank: rank,
			seq:          i,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if ha, hb := blockOrder(a.BlockHeight), blockOrder(b.BlockHeight); ha != hb {
			return ha < hb
		}
		return a.seq < b.seq
	})
	return out
}

func blockOrder(h *int64) int64 {
	if h == nil {
		return math.MaxInt64
	}
	return *h
}

// AggregateDaily consolidates transactions into one record per UTC day, ordered by date.
// Within a day, txs must be in chronological order; the last one sets the ending balance.
func AggregateDaily(txs []NormalizedTransaction) []models.DailyAggregate {
	groups := make(map[string][]NormalizedTransaction)
	var keys []string
	for _, tx := range txs {
		key := tx.Date.String()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], tx)
	}
	sort.Strings(keys)

	out := make([]models.DailyAggregate, 0, len(keys))
	for _, key := range keys {
		out = append(out, aggregateDay(groups[key]))
	}
	return out
}

func aggregateDay(day []NormalizedTransaction) models.DailyAggregate {
	first := day[0]
	last := day[len(day)-1]

	agg := models.DailyAggregate{
		Wallet:       first.Wallet,
		Date:         first.Date,
		NetAmountBTC: decimal.Zero,
		BalanceBTC:   last.BalanceBTC,
		FeeBTC:       decimal.Zero,
		RichlistRank: first.RichlistRank,
	}

	seen := make(map[string]struct{}, len(day))
	var priceSum, valueSum float64
	var priced, valued int

	for i := range day {
		tx := &day[i]
		agg.NetAmountBTC = agg.NetAmountBTC.Add(tx.AmountBTC)
		agg.FeeBTC = agg.FeeBTC.Add(tx.FeeBTC)

		if tx.BlockHeight != nil {
			h := *tx.BlockHeight
			if agg.FirstBlock == nil || h < *agg.FirstBlock {
				agg.FirstBlock = &h
			}
			if agg.LastBlock == nil || h > *agg.LastBlock {
				agg.LastBlock = &h
			}
		}

		if _, ok := seen[tx.Hash]; !ok {
			seen[tx.Hash] = struct{}{}
			agg.TxHashes = append(agg.TxHashes, tx.Hash)
		}

		if tx.PriceUSD != nil {
			priceSum += *tx.PriceUSD
			priced++
		}
		if tx.ValueUSD != nil {
			valueSum += *tx.ValueUSD
			valued++
		}
	}

	if priced > 0 {
		mean := priceSum / float64(priced)
		agg.PriceUSD = &mean
	}
	if valued > 0 {
		agg.ValueUSD = &valueSum
	}

	agg.Type = types.ClassifyAmount(agg.NetAmountBTC.InexactFloat64())
	agg.PortfolioPct = portfolioPct(agg.NetAmountBTC, agg.BalanceBTC)
	return agg
}

// Normalize converts one wallet's raw history into daily aggregates ordered by date
func Normalize(address string, raw []models.RawTransaction, rank int, prices *PriceSeries) []models.DailyAggregate {
	return AggregateDaily(NormalizeTransactions(address, raw, rank, prices))
}
