package storage

import (
	"fmt"
	"os"
	"sort"
	"time"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

var priceHeader = []string{"Date", "Price", "Open", "High", "Low", "Vol.", "Change %"}

// Layouts accepted for the Date column of historical price exports
var priceDateLayouts = []string{"01/02/2006", "Jan 02, 2006"}

// PriceFilePath returns the path of the reference price table
func (s *FileStore) PriceFilePath() string {
	return s.path(rawPriceDir, s.priceFile)
}

// LoadPrices reads the reference price table in file order.
// ok is false when no price file exists yet. Rows whose price cannot be parsed are skipped.
func (s *FileStore) LoadPrices() (prices []models.PriceObservation, ok bool, err error) {
	path := s.PriceFilePath()
	table, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewParseError(path, err)
	}
	if !table.has("Date") || !table.has("Price") {
		return nil, false, apperrors.NewParseError(path, fmt.Errorf("price table needs Date and Price columns"))
	}

	skipped := 0
	prices = make([]models.PriceObservation, 0, len(table.rows))
	for _, row := range table.rows {
		date, err := parsePriceDate(table.get(row, "Date"))
		if err != nil {
			skipped++
			continue
		}
		price, err := parseNumber(table.get(row, "Price"))
		if err != nil {
			skipped++
			continue
		}

		obs := models.PriceObservation{
			Date:      date,
			Price:     price,
			Open:      numberOr(table.get(row, "Open"), price),
			High:      numberOr(table.get(row, "High"), price),
			Low:       numberOr(table.get(row, "Low"), price),
			Volume:    table.get(row, "Vol."),
			ChangePct: parseOptFloat(table.get(row, "Change %")),
		}
		prices = append(prices, obs)
	}

	if skipped > 0 {
		s.logger.WithFields(map[string]interface{}{
			"file":    path,
			"skipped": skipped,
		}).Warn("Skipped unparsable price rows")
	}
	return prices, true, nil
}

// SavePrices replaces the reference price table, ordered by date
func (s *FileStore) SavePrices(prices []models.PriceObservation) error {
	sorted := make([]models.PriceObservation, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, []string{
			p.Date.String(),
			formatFloat(p.Price),
			formatFloat(p.Open),
			formatFloat(p.High),
			formatFloat(p.Low),
			p.Volume,
			formatOptFloat(p.ChangePct),
		})
	}

	if err := writeCSVAtomic(s.PriceFilePath(), priceHeader, rows); err != nil {
		return fmt.Errorf("failed to save prices: %w", err)
	}
	s.logger.WithField("rows", len(rows)).Info("Saved reference prices")
	return nil
}

func parsePriceDate(s string) (types.Date, error) {
	if d, err := types.ParseDate(s); err == nil {
		return d, nil
	}
	for _, layout := range priceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.DateOf(t), nil
		}
	}
	return types.Date{}, fmt.Errorf("unrecognized date %q", s)
}

func numberOr(s string, fallback float64) float64 {
	v, err := parseNumber(s)
	if err != nil {
		return fallback
	}
	return v
}
