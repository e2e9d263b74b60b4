package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

const (
	richlistPrefix     = "richlist_"
	richlistDateLayout = "20060102"
)

var richlistHeader = []string{"rank", "btc_address", "last_in", "last_out"}

// LatestRichlist loads the snapshot with the greatest embedded date.
// A missing directory or an empty one yields an empty snapshot, never an error.
func (s *FileStore) LatestRichlist() (*models.RichlistSnapshot, error) {
	stems, err := listStems(s.path(rawRichlistDir))
	if err != nil {
		return nil, err
	}

	var latest string
	var latestDate time.Time
	for _, stem := range stems {
		date, ok := richlistDate(stem)
		if !ok {
			continue
		}
		if latest == "" || date.After(latestDate) {
			latest, latestDate = stem, date
		}
	}

	if latest == "" {
		s.logger.WithField("dir", s.path(rawRichlistDir)).Warn("No richlist snapshot found")
		return models.NewRichlistSnapshot(types.Date{}, nil), nil
	}

	path := s.path(rawRichlistDir, latest+".csv")
	table, err := readCSV(path)
	if err != nil {
		return nil, apperrors.NewParseError(path, err)
	}
	if !table.has("btc_address") {
		return nil, apperrors.NewParseError(path, fmt.Errorf("richlist needs a btc_address column"))
	}

	entries := make([]models.RichlistEntry, 0, len(table.rows))
	for _, row := range table.rows {
		address := table.get(row, "btc_address")
		if address == "" {
			continue
		}
		rank, err := strconv.Atoi(table.get(row, "rank"))
		if err != nil {
			rank = 0 // looked up as unranked
		}
		entries = append(entries, models.RichlistEntry{
			Rank:    rank,
			Address: address,
			LastIn:  table.get(row, "last_in"),
			LastOut: table.get(row, "last_out"),
		})
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"file":    path,
		"wallets": len(entries),
	})
	if len(entries) == 0 {
		logger.Warn("Richlist snapshot lists no wallets")
	} else {
		logger.Info("Loaded richlist snapshot")
	}
	return models.NewRichlistSnapshot(types.DateOf(latestDate), entries), nil
}

// SaveRichlist writes a snapshot for date and removes every older snapshot
func (s *FileStore) SaveRichlist(date types.Date, entries []models.RichlistEntry) error {
	dir := s.path(rawRichlistDir)
	name := richlistPrefix + date.Time().Format(richlistDateLayout)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{strconv.Itoa(e.Rank), e.Address, e.LastIn, e.LastOut})
	}
	if err := writeCSVAtomic(s.path(rawRichlistDir, name+".csv"), richlistHeader, rows); err != nil {
		return fmt.Errorf("failed to save richlist: %w", err)
	}

	stems, err := listStems(dir)
	if err != nil {
		return err
	}
	for _, stem := range stems {
		if stem == name || !strings.HasPrefix(stem, richlistPrefix) {
			continue
		}
		if err := os.Remove(s.path(rawRichlistDir, stem+".csv")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old richlist %s: %w", stem, err)
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"snapshot": name,
		"wallets":  len(entries),
	}).Info("Saved richlist snapshot")
	return nil
}

func richlistDate(stem string) (time.Time, bool) {
	if !strings.HasPrefix(stem, richlistPrefix) {
		return time.Time{}, false
	}
	t, err := time.Parse(richlistDateLayout, strings.TrimPrefix(stem, richlistPrefix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
