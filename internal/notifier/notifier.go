// Package notifier delivers whale movement alerts to chat channels.
package notifier

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/whale-tracker/internal/circuitbreaker"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
)

// Notifier sends alerts to one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
	Close() error
}

// Multi broadcasts alerts to every registered notifier
type Multi struct {
	notifiers []Notifier
	logger    *logging.Logger
}

// NewMulti creates a Multi. Nil notifiers are dropped.
func NewMulti(logger *logging.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Multi{notifiers: active, logger: logger}
}

// Send delivers the alert to every channel. A failing channel does not stop the others;
// the returned error joins every channel failure.
func (m *Multi) Send(ctx context.Context, alert *models.Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			m.logger.WithField("channel", n.Name()).WithError(err).Warn("Alert channel failed")
			errs = append(errs, apperrors.NewNotificationError(n.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}

// Close closes every notifier and returns the last error
func (m *Multi) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers
func (m *Multi) Count() int {
	return len(m.notifiers)
}

// Guarded wraps a notifier in a circuit breaker so a failing channel is skipped until it recovers
type Guarded struct {
	Notifier
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuarded wraps n. trips is the number of consecutive failures that opens the circuit.
func NewGuarded(n Notifier, trips int, logger *logging.Logger) *Guarded {
	cfg := circuitbreaker.DefaultConfig(n.Name())
	if trips > 0 {
		cfg.MaxFailures = trips
	}
	cfg.Logger = logger
	return &Guarded{Notifier: n, breaker: circuitbreaker.NewCircuitBreaker(cfg)}
}

// Send delivers through the breaker
func (g *Guarded) Send(ctx context.Context, alert *models.Alert) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Notifier.Send(ctx, alert)
	})
}

// State returns the breaker state
func (g *Guarded) State() circuitbreaker.State {
	return g.breaker.GetState()
}

// New builds the configured channels, each behind a circuit breaker.
// Channels without credentials are skipped.
func New(cfg config.AlertsConfig, logger *logging.Logger) (*Multi, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var notifiers []Notifier

	tg, err := NewTelegram(cfg.Telegram, logger)
	if err != nil {
		return nil, err
	}
	if tg != nil {
		notifiers = append(notifiers, NewGuarded(tg, cfg.BreakerTrips, logger))
	}

	dc, err := NewDiscord(cfg.Discord, logger)
	if err != nil {
		return nil, err
	}
	if dc != nil {
		notifiers = append(notifiers, NewGuarded(dc, cfg.BreakerTrips, logger))
	}

	if len(notifiers) == 0 {
		logger.Warn("No alert channels configured, alerts will only be logged")
	}
	return NewMulti(logger, notifiers...), nil
}

// FormatMessage renders an alert as plain text
func FormatMessage(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s WHALE ALERT\n", alert.Level.Emoji(), alert.Level)
	fmt.Fprintf(&b, "Wallet: %s\n", alert.Wallet)
	fmt.Fprintf(&b, "%s %s BTC (%s%% of portfolio)\n", alert.Action(), formatBTC(alert.AmountBTC), formatPct(alert.PortfolioPct))
	if alert.ValueUSD != nil {
		fmt.Fprintf(&b, "Value: $%s\n", formatUSD(*alert.ValueUSD))
	}
	if alert.ROI != nil {
		fmt.Fprintf(&b, "ROI: %s%%", formatPct(*alert.ROI))
		if alert.TraderType != "" {
			fmt.Fprintf(&b, " (%s)", alert.TraderType)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Date: %s", alert.Date)
	return b.String()
}

func formatBTC(v float64) string {
	return decimal.NewFromFloat(v).Abs().StringFixed(8)
}

func formatUSD(v float64) string {
	s := decimal.NewFromFloat(v).Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	var out []byte
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, whole[i])
	}
	return string(out) + "." + frac
}

func formatPct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
