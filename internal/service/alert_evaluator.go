package service

import (
	"context"
	"time"

	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// AlertSender delivers one alert
type AlertSender interface {
	Send(ctx context.Context, alert *models.Alert) error
}

// SummarySource provides the cross-wallet summary used to enrich alerts
type SummarySource interface {
	LoadSummary() ([]models.WalletMetrics, error)
}

// AlertReport counts the alerts built and delivered by one evaluation
type AlertReport struct {
	Built     int      `json:"built"`
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Skipped   []string `json:"skipped,omitempty"`
	// Errors maps wallets whose daily aggregates could not be read to the reason
	Errors map[string]string `json:"errors,omitempty"`
}

func (r *AlertReport) recordError(wallet string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[wallet] = err.Error()
}

// AlertEvaluator turns recent large movements into alerts
type AlertEvaluator struct {
	cfg     config.AlertsConfig
	daily   DailyStore
	summary SummarySource
	sender  AlertSender
	logger  *logging.Logger
	now     func() time.Time
}

// NewAlertEvaluator creates an alert evaluator. sender may be nil, in which case alerts are only logged.
func NewAlertEvaluator(cfg config.AlertsConfig, daily DailyStore, summary SummarySource, sender AlertSender, logger *logging.Logger) *AlertEvaluator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AlertEvaluator{
		cfg:     cfg,
		daily:   daily,
		summary: summary,
		sender:  sender,
		logger:  logger.WithField("stage", types.StageAlerts),
		now:     time.Now,
	}
}

// Level maps a portfolio percentage to an alert level
func (e *AlertEvaluator) Level(pct *float64) types.AlertLevel {
	if pct == nil {
		return types.AlertNone
	}
	switch p := *pct; {
	case p >= e.cfg.UrgentPct:
		return types.AlertUrgent
	case p >= e.cfg.HighPct:
		return types.AlertHigh
	case p >= e.cfg.InfoPct:
		return types.AlertInfo
	default:
		return types.AlertNone
	}
}

// Since returns the first day covered by the configured lookback
func (e *AlertEvaluator) Since() types.Date {
	return types.DateOf(e.now().Add(-e.cfg.Lookback))
}

// Evaluate scans the daily aggregates of the given wallets dated on or after since.
// Unreadable wallets and delivery failures are logged and recorded in the report, never returned.
func (e *AlertEvaluator) Evaluate(ctx context.Context, wallets []string, since types.Date) (*AlertReport, error) {
	report := &AlertReport{}

	summary := map[string]models.WalletMetrics{}
	if e.summary != nil {
		rows, err := e.summary.LoadSummary()
		if err != nil {
			e.logger.WithError(err).Warn("Alerts sent without summary enrichment")
		}
		for _, m := range rows {
			summary[m.Address] = m
		}
	}

	for _, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		daily, err := e.daily.LoadDaily(wallet)
		if err != nil {
			if apperrors.Is(err, apperrors.CategoryMissingData) {
				report.Skipped = append(report.Skipped, wallet)
				continue
			}
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"wallet":   wallet,
				"category": string(apperrors.CategoryOf(err)),
			}).Warn("Skipping wallet with unreadable daily aggregates")
			report.recordError(wallet, err)
			continue
		}

		for i := range daily {
			alert := e.build(wallet, &daily[i], since, summary)
			if alert == nil {
				continue
			}
			report.Built++
			if e.deliver(ctx, alert) {
				report.Delivered++
			} else {
				report.Failed++
			}
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"since":     since.String(),
		"built":     report.Built,
		"delivered": report.Delivered,
		"failed":    report.Failed,
		"errors":    len(report.Errors),
	}).Info("Alert evaluation finished")
	return report, nil
}

// build keys the alert and its enrichment on the scanned wallet, not on the row's own wallet cell
func (e *AlertEvaluator) build(wallet string, day *models.DailyAggregate, since types.Date, summary map[string]models.WalletMetrics) *models.Alert {
	if day.Date.Before(since) {
		return nil
	}
	level := e.Level(day.PortfolioPct)
	if level == types.AlertNone {
		return nil
	}

	alert := &models.Alert{
		Level:        level,
		Wallet:       wallet,
		Date:         day.Date,
		Type:         day.Type,
		AmountBTC:    day.NetAmount(),
		PortfolioPct: *day.PortfolioPct,
		ValueUSD:     day.ValueUSD,
		CreatedAt:    e.now().UTC(),
	}
	if m, ok := summary[wallet]; ok {
		roi := m.ROI
		alert.ROI = &roi
		alert.TraderType = m.TraderType
	}
	return alert
}

func (e *AlertEvaluator) deliver(ctx context.Context, alert *models.Alert) bool {
	logger := e.logger.WithFields(map[string]interface{}{
		"wallet": alert.Wallet,
		"date":   alert.Date.String(),
		"level":  string(alert.Level),
	})
	if e.sender == nil {
		logger.Info("Alert (no delivery channel configured)")
		return true
	}
	if err := e.sender.Send(ctx, alert); err != nil {
		logger.WithError(err).Warn("Alert delivery failed")
		return false
	}
	logger.Debug("Alert delivered")
	return true
}
