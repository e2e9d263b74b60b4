package models

import "github.com/whale-tracker/internal/types"

// PriceObservation is one day's reference price.
// Open, High and Low are legacy columns kept for compatibility with the historical price file.
type PriceObservation struct {
	Date      types.Date `json:"date"`
	Price     float64    `json:"price"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Volume    string     `json:"volume"`
	ChangePct *float64   `json:"changePct,omitempty"`
}
