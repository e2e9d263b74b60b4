package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// DailyAggregateRepository mirrors daily aggregates into ClickHouse for cross-wallet analysis.
// The table is a ReplacingMergeTree keyed by (wallet, date), so re-running a wallet supersedes its rows.
type DailyAggregateRepository struct {
	db  *ClickHouseDB
	now func() time.Time
}

// NewDailyAggregateRepository creates a new daily aggregate repository
func NewDailyAggregateRepository(db *ClickHouseDB) *DailyAggregateRepository {
	return &DailyAggregateRepository{db: db, now: time.Now}
}

// ReplaceWallet writes every daily aggregate of one wallet
func (r *DailyAggregateRepository) ReplaceWallet(ctx context.Context, daily []models.DailyAggregate) error {
	if len(daily) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO daily_aggregates (wallet, date, net_amount_btc, balance_btc, fee_btc, first_block, last_block,
			tx_hashes, price_usd, value_usd, type, portfolio_pct, richlist_rank, computed_at)
	`)
	if err != nil {
		return apperrors.NewDatabaseError("prepare daily batch", err)
	}

	computedAt := r.now().UTC()
	for _, d := range daily {
		hashes := d.TxHashes
		if hashes == nil {
			hashes = []string{}
		}
		err := batch.Append(
			d.Wallet,
			d.Date.Time(),
			d.NetAmountBTC,
			d.BalanceBTC,
			d.FeeBTC,
			d.FirstBlock,
			d.LastBlock,
			hashes,
			d.PriceUSD,
			d.ValueUSD,
			string(d.Type),
			d.PortfolioPct,
			uint32(d.RichlistRank), // #nosec G115 - ranks are positive
			computedAt,
		)
		if err != nil {
			return apperrors.NewDatabaseError("append daily batch", err)
		}
	}

	if err := batch.Send(); err != nil {
		return apperrors.NewDatabaseError("send daily batch", err)
	}
	return nil
}

// GetRange returns a wallet's aggregates dated within [from, to], oldest first. Zero bounds are open.
func (r *DailyAggregateRepository) GetRange(ctx context.Context, wallet string, from, to types.Date) ([]models.DailyAggregate, error) {
	lo, hi := from.Time(), to.Time()
	if from.IsZero() {
		lo = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		hi = time.Date(2149, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	query := `
		SELECT wallet, date, net_amount_btc, balance_btc, fee_btc, first_block, last_block,
			tx_hashes, price_usd, value_usd, type, portfolio_pct, richlist_rank
		FROM daily_aggregates FINAL
		WHERE wallet = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, wallet, lo, hi)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query daily aggregates", err)
	}
	defer rows.Close()

	var out []models.DailyAggregate
	for rows.Next() {
		var (
			d        models.DailyAggregate
			day      time.Time
			net, bal decimal.Decimal
			fee      decimal.Decimal
			txType   string
			rank     uint32
		)
		if err := rows.Scan(&d.Wallet, &day, &net, &bal, &fee, &d.FirstBlock, &d.LastBlock,
			&d.TxHashes, &d.PriceUSD, &d.ValueUSD, &txType, &d.PortfolioPct, &rank); err != nil {
			return nil, apperrors.NewDatabaseError("scan daily aggregate", err)
		}
		d.Date = types.DateOf(day)
		d.NetAmountBTC, d.BalanceBTC, d.FeeBTC = net, bal, fee
		d.Type = types.TransactionType(txType)
		d.RichlistRank = int(rank)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate daily aggregates", err)
	}
	return out, nil
}
