// Package types provides common type definitions for the whale tracker system.
package types

import (
	"strings"
	"time"
)

// TransactionType represents the direction of a wallet movement
type TransactionType string

const (
	// TypeBuy represents a positive balance movement
	TypeBuy TransactionType = "buy"
	// TypeSell represents a negative balance movement
	TypeSell TransactionType = "sell"
	// TypeTransfer represents a movement with zero net effect
	TypeTransfer TransactionType = "transfer"
)

// ClassifyAmount returns the transaction type for a signed amount
func ClassifyAmount(amount float64) TransactionType {
	switch {
	case amount > 0:
		return TypeBuy
	case amount < 0:
		return TypeSell
	default:
		return TypeTransfer
	}
}

// IsTrade reports whether the type is a buy or a sell
func (t TransactionType) IsTrade() bool {
	return t == TypeBuy || t == TypeSell
}

// TraderType represents a wallet's trading-pattern classification
type TraderType string

const (
	// TraderNewWallet is a wallet with too little history to classify
	TraderNewWallet TraderType = "New Wallet"
	// TraderActive trades often and sells significant portions repeatedly
	TraderActive TraderType = "Active Trader"
	// TraderOccasional has sold a significant portion at least once
	TraderOccasional TraderType = "Occasional Trader"
	// TraderHolder never sold a significant portion
	TraderHolder TraderType = "Holder"
)

// AlertLevel represents the urgency of a whale movement alert
type AlertLevel string

const (
	AlertNone   AlertLevel = ""
	AlertInfo   AlertLevel = "INFO"
	AlertHigh   AlertLevel = "HIGH"
	AlertUrgent AlertLevel = "URGENT"
)

// Emoji returns the prefix used in alert messages
func (l AlertLevel) Emoji() string {
	switch l {
	case AlertUrgent:
		return "🚨"
	case AlertHigh:
		return "⚠️"
	case AlertInfo:
		return "ℹ️"
	default:
		return ""
	}
}

// Stage names a pipeline stage, used in logs and run results
type Stage string

const (
	StagePrices    Stage = "prices"
	StageCollect   Stage = "collect"
	StageNormalize Stage = "normalize"
	StageMetrics   Stage = "metrics"
	StageAlerts    Stage = "alerts"
)

// RankSentinel is assigned to wallets absent from the richlist snapshot
const RankSentinel = 999

// SatoshisPerBTC is the fixed scale between satoshis and BTC
const SatoshisPerBTC = 100_000_000

// DateLayout is the calendar date format used in every persisted table
const DateLayout = "2006-01-02"

// Date is a UTC calendar day
type Date struct {
	t time.Time
}

// DateOf truncates a timestamp to its UTC calendar day
func DateOf(ts time.Time) Date {
	u := ts.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// DateFromUnix returns the UTC calendar day of a unix timestamp in seconds
func DateFromUnix(sec int64) Date {
	return DateOf(time.Unix(sec, 0))
}

// ParseDate parses YYYY-MM-DD, tolerating a trailing time component
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time { return d.t }

// String formats the day as YYYY-MM-DD
func (d Date) String() string { return d.t.Format(DateLayout) }

// IsZero reports whether the date is unset
func (d Date) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is earlier than o
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports whether d is later than o
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// AddDays returns the date n days later
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// DaysSince returns the whole number of days from o to d
func (d Date) DaysSince(o Date) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
