package service

import (
	"math"
	"sort"
	"time"

	"github.com/whale-tracker/internal/config"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// MetricsEngine derives trading-behavior and performance metrics from daily aggregates
type MetricsEngine struct {
	cfg config.MetricsConfig
	now func() time.Time
}

// NewMetricsEngine creates a metrics engine
func NewMetricsEngine(cfg config.MetricsConfig) *MetricsEngine {
	return &MetricsEngine{cfg: cfg, now: time.Now}
}

// ComputeMetrics summarizes one wallet's daily history valued at currentPrice
func (e *MetricsEngine) ComputeMetrics(address string, daily []models.DailyAggregate, currentPrice float64) *models.WalletMetrics {
	m := &models.WalletMetrics{
		Address:         address,
		Rank:            types.RankSentinel,
		TraderType:      types.TraderNewWallet,
		CurrentPriceUSD: currentPrice,
		LastUpdated:     e.now().UTC(),
	}
	if len(daily) == 0 {
		return m
	}

	days := make([]models.DailyAggregate, len(daily))
	copy(days, daily)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	first, last := days[0], days[len(days)-1]
	m.Rank = last.RichlistRank
	m.FirstTransaction = first.Date
	m.LastTransaction = last.Date
	m.CurrentBalanceBTC = last.Balance()

	var buyDates, sellDates []float64
	var pricedTrades, winningTrades int
	for i := range days {
		d := &days[i]
		m.TotalTransactions += len(d.TxHashes)
		m.TotalFeesBTC += d.FeeBTC.InexactFloat64()

		amount := d.NetAmount()
		switch d.Type {
		case types.TypeBuy:
			m.TotalBuys++
			m.BuyVolumeBTC += math.Abs(amount)
			buyDates = append(buyDates, epochDays(d.Date))
			if d.PriceUSD != nil {
				m.TotalMoneyIn += math.Abs(amount) * *d.PriceUSD
			}
		case types.TypeSell:
			m.TotalSells++
			m.SellVolumeBTC += math.Abs(amount)
			sellDates = append(sellDates, epochDays(d.Date))
			if d.PriceUSD != nil {
				m.TotalMoneyOut += math.Abs(amount) * *d.PriceUSD
			}
			if d.PortfolioPct != nil && *d.PortfolioPct >= e.cfg.SignificantSellPct {
				m.SignificantSells++
			}
		}

		if d.Type.IsTrade() && d.PriceUSD != nil {
			m.RealizedPnL += amount * *d.PriceUSD
		}
		if d.Type.IsTrade() && d.ValueUSD != nil {
			pricedTrades++
			if *d.ValueUSD > 0 {
				winningTrades++
			}
		}
	}

	m.TradingDays = m.TotalBuys + m.TotalSells
	if m.TotalBuys > 0 {
		m.AvgBuySizeBTC = m.BuyVolumeBTC / float64(m.TotalBuys)
	}
	if m.TotalSells > 0 {
		m.AvgSellSizeBTC = m.SellVolumeBTC / float64(m.TotalSells)
	}

	span := last.Date.DaysSince(first.Date)
	m.ActiveDays = span
	if span > 0 {
		m.TradingFrequency = float64(m.TradingDays) / (float64(span) / 30)
	}
	m.TraderType = e.classify(span, m.TradingFrequency, m.SignificantSells)

	m.NetInvestment = m.TotalMoneyIn - m.TotalMoneyOut
	m.CurrentValue = m.CurrentBalanceBTC * currentPrice
	m.ROI = NetInvestmentROI(m.CurrentValue, m.NetInvestment)

	fiat := fiatBalances(days)
	m.Volatility = volatility(fiat)
	m.MaxDrawdown = maxDrawdown(fiat)

	if pricedTrades > 0 {
		rate := float64(winningTrades) / float64(pricedTrades) * 100
		m.WinRate = &rate
	}
	if len(buyDates) > 0 && len(sellDates) > 0 {
		hold := math.Floor(mean(sellDates) - mean(buyDates))
		m.AvgHoldTimeDays = &hold
	}
	m.BalanceChangeShort = balanceChange(days, windowDays(e.cfg.ShortWindow, 30))
	m.BalanceChangeLong = balanceChange(days, windowDays(e.cfg.LongWindow, 90))

	return m
}

// classify applies the trader-type rules in precedence order
func (e *MetricsEngine) classify(spanDays int, frequency float64, significantSells int) types.TraderType {
	switch {
	case spanDays < e.cfg.NewWalletDays:
		return types.TraderNewWallet
	case frequency >= e.cfg.ActiveTraderFrequency && significantSells >= 3:
		return types.TraderActive
	case significantSells >= 1:
		return types.TraderOccasional
	default:
		return types.TraderHolder
	}
}

// NetInvestmentROI returns (value − net) / net × 100, or 0 when nothing is net invested
func NetInvestmentROI(currentValue, netInvestment float64) float64 {
	if netInvestment <= 0 {
		return 0
	}
	return (currentValue - netInvestment) / netInvestment * 100
}

// fiatBalances returns balance × price for every priced day, in date order
func fiatBalances(days []models.DailyAggregate) []float64 {
	values := make([]float64, 0, len(days))
	for i := range days {
		if v, ok := days[i].FiatBalance(); ok {
			values = append(values, v)
		}
	}
	return values
}

// volatility is the sample standard deviation as a percentage of the mean
func volatility(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	mu := mean(values)
	if mu == 0 {
		return nil
	}
	var ss float64
	for _, v := range values {
		ss += (v - mu) * (v - mu)
	}
	std := math.Sqrt(ss / float64(len(values)-1))
	pct := std / mu * 100
	return &pct
}

// maxDrawdown is the largest fall from a running peak, as a positive percentage of the peak
func maxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return &worst
}

// balanceChange is the percent change of ending balance across the window that ends on the last day
func balanceChange(days []models.DailyAggregate, window int) *float64 {
	if len(days) == 0 {
		return nil
	}
	start := days[len(days)-1].Date.AddDays(-window)
	i := sort.Search(len(days), func(i int) bool { return !days[i].Date.Before(start) })

	from := days[i].Balance()
	to := days[len(days)-1].Balance()
	change := 0.0
	if from != 0 {
		change = (to - from) / from * 100
	}
	return &change
}

func windowDays(d time.Duration, fallback int) int {
	if d <= 0 {
		return fallback
	}
	return int(d.Hours() / 24)
}

func epochDays(d types.Date) float64 {
	return float64(d.Time().Unix()) / 86400
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
