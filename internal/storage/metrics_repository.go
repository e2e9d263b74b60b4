package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// MetricsRepository keeps the cross-wallet summary in Postgres.
// wallet_metrics holds the latest row per wallet; wallet_metrics_history keeps every computed snapshot.
type MetricsRepository struct {
	db *PostgresDB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *PostgresDB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

const metricsColumnList = `
	address, rank, first_transaction, last_transaction, total_transactions, active_days, trading_days,
	total_buys, total_sells, buy_volume_btc, sell_volume_btc, avg_buy_size_btc, avg_sell_size_btc,
	trading_frequency, significant_sells, trader_type, current_balance_btc, current_price_usd,
	total_money_in, total_money_out, net_investment, current_value, roi_overall, realized_pnl,
	total_fees_btc, volatility, max_drawdown, win_rate, avg_hold_time_days,
	balance_change_short, balance_change_long, last_updated`

const metricsPlaceholders = `
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
	$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32`

// Upsert replaces the wallet's summary row and records the snapshot in the history table
func (r *MetricsRepository) Upsert(ctx context.Context, m *models.WalletMetrics) error {
	upsert := `
		INSERT INTO wallet_metrics (` + metricsColumnList + `)
		VALUES (` + metricsPlaceholders + `)
		ON CONFLICT (address) DO UPDATE SET
			rank = EXCLUDED.rank,
			first_transaction = EXCLUDED.first_transaction,
			last_transaction = EXCLUDED.last_transaction,
			total_transactions = EXCLUDED.total_transactions,
			active_days = EXCLUDED.active_days,
			trading_days = EXCLUDED.trading_days,
			total_buys = EXCLUDED.total_buys,
			total_sells = EXCLUDED.total_sells,
			buy_volume_btc = EXCLUDED.buy_volume_btc,
			sell_volume_btc = EXCLUDED.sell_volume_btc,
			avg_buy_size_btc = EXCLUDED.avg_buy_size_btc,
			avg_sell_size_btc = EXCLUDED.avg_sell_size_btc,
			trading_frequency = EXCLUDED.trading_frequency,
			significant_sells = EXCLUDED.significant_sells,
			trader_type = EXCLUDED.trader_type,
			current_balance_btc = EXCLUDED.current_balance_btc,
			current_price_usd = EXCLUDED.current_price_usd,
			total_money_in = EXCLUDED.total_money_in,
			total_money_out = EXCLUDED.total_money_out,
			net_investment = EXCLUDED.net_investment,
			current_value = EXCLUDED.current_value,
			roi_overall = EXCLUDED.roi_overall,
			realized_pnl = EXCLUDED.realized_pnl,
			total_fees_btc = EXCLUDED.total_fees_btc,
			volatility = EXCLUDED.volatility,
			max_drawdown = EXCLUDED.max_drawdown,
			win_rate = EXCLUDED.win_rate,
			avg_hold_time_days = EXCLUDED.avg_hold_time_days,
			balance_change_short = EXCLUDED.balance_change_short,
			balance_change_long = EXCLUDED.balance_change_long,
			last_updated = EXCLUDED.last_updated
	`
	history := `INSERT INTO wallet_metrics_history (` + metricsColumnList + `) VALUES (` + metricsPlaceholders + `)`

	args := metricsArgs(m)
	err := pgx.BeginFunc(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert, args...); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, history, args...)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("upsert wallet metrics", err)
	}
	return nil
}

// Get returns the summary row of one wallet
func (r *MetricsRepository) Get(ctx context.Context, address string) (*models.WalletMetrics, error) {
	query := `SELECT ` + metricsColumnList + ` FROM wallet_metrics WHERE address = $1`

	m, err := scanMetrics(r.db.Pool().QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("wallet metrics", address)
		}
		return nil, apperrors.NewDatabaseError("get wallet metrics", err)
	}
	return m, nil
}

// List returns every summary row ordered by rank
func (r *MetricsRepository) List(ctx context.Context) ([]models.WalletMetrics, error) {
	query := `SELECT ` + metricsColumnList + ` FROM wallet_metrics ORDER BY rank, address`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list wallet metrics", err)
	}
	defer rows.Close()

	var out []models.WalletMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan wallet metrics", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate wallet metrics", err)
	}
	return out, nil
}

// History returns the stored snapshots of one wallet, newest first
func (r *MetricsRepository) History(ctx context.Context, address string, limit int) ([]models.WalletMetrics, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `SELECT ` + metricsColumnList + ` FROM wallet_metrics_history
		WHERE address = $1 ORDER BY last_updated DESC LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, address, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list metrics history", err)
	}
	defer rows.Close()

	var out []models.WalletMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan metrics history", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func metricsArgs(m *models.WalletMetrics) []interface{} {
	return []interface{}{
		m.Address, m.Rank, dateArg(m.FirstTransaction), dateArg(m.LastTransaction),
		m.TotalTransactions, m.ActiveDays, m.TradingDays,
		m.TotalBuys, m.TotalSells, m.BuyVolumeBTC, m.SellVolumeBTC, m.AvgBuySizeBTC, m.AvgSellSizeBTC,
		m.TradingFrequency, m.SignificantSells, string(m.TraderType), m.CurrentBalanceBTC, m.CurrentPriceUSD,
		m.TotalMoneyIn, m.TotalMoneyOut, m.NetInvestment, m.CurrentValue, m.ROI, m.RealizedPnL,
		m.TotalFeesBTC, m.Volatility, m.MaxDrawdown, m.WinRate, m.AvgHoldTimeDays,
		m.BalanceChangeShort, m.BalanceChangeLong, m.LastUpdated,
	}
}

func dateArg(d types.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func scanMetrics(row pgx.Row) (*models.WalletMetrics, error) {
	var m models.WalletMetrics
	var first, last *time.Time
	var traderType string

	err := row.Scan(
		&m.Address, &m.Rank, &first, &last, &m.TotalTransactions, &m.ActiveDays, &m.TradingDays,
		&m.TotalBuys, &m.TotalSells, &m.BuyVolumeBTC, &m.SellVolumeBTC, &m.AvgBuySizeBTC, &m.AvgSellSizeBTC,
		&m.TradingFrequency, &m.SignificantSells, &traderType, &m.CurrentBalanceBTC, &m.CurrentPriceUSD,
		&m.TotalMoneyIn, &m.TotalMoneyOut, &m.NetInvestment, &m.CurrentValue, &m.ROI, &m.RealizedPnL,
		&m.TotalFeesBTC, &m.Volatility, &m.MaxDrawdown, &m.WinRate, &m.AvgHoldTimeDays,
		&m.BalanceChangeShort, &m.BalanceChangeLong, &m.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	m.TraderType = types.TraderType(traderType)
	if first != nil {
		m.FirstTransaction = types.DateOf(*first)
	}
	if last != nil {
		m.LastTransaction = types.DateOf(*last)
	}
	return &m, nil
}
