package models

import (
	"time"

	"github.com/whale-tracker/internal/types"
)

// Alert is a notification about a significant whale movement
type Alert struct {
	Level        types.AlertLevel      `json:"level"`
	Wallet       string                `json:"wallet"`
	Date         types.Date            `json:"date"`
	Type         types.TransactionType `json:"type"`
	AmountBTC    float64               `json:"amountBtc"`
	PortfolioPct float64               `json:"portfolioPct"`
	ValueUSD     *float64              `json:"valueUsd,omitempty"`
	ROI          *float64              `json:"roi,omitempty"`
	TraderType   types.TraderType      `json:"traderType,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// Action describes the movement in words
func (a *Alert) Action() string {
	switch a.Type {
	case types.TypeBuy:
		return "Bought"
	case types.TypeSell:
		return "Sold"
	default:
		return "Moved"
	}
}
