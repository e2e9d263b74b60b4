package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/whale-tracker/internal/config"
	"github.com/whale-tracker/internal/logging"
)

const (
	rawTransactionsDir = "raw/transactions"
	rawPriceDir        = "raw/price"
	rawRichlistDir     = "raw/richlist"
	dailyDir           = "processed/daily"
	walletMetricsDir   = "processed/wallet_metrics"
	summaryFileName    = "all_wallets_summary.csv"
)

// FileStore persists pipeline tables as CSV files under a base directory.
//
// Every file is written to a temporary sibling and renamed into place, so a
// reader never observes a half-written table. Writes to the cross-wallet
// summary are serialized by summaryMu.
type FileStore struct {
	baseDir   string
	priceFile string
	logger    *logging.Logger

	summaryMu sync.Mutex
}

// NewFileStore creates a file store rooted at cfg.BaseDir
func NewFileStore(cfg config.DataConfig, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	priceFile := cfg.PriceFile
	if priceFile == "" {
		priceFile = "BTC_USD.csv"
	}
	return &FileStore{
		baseDir:   cfg.BaseDir,
		priceFile: priceFile,
		logger:    logger.WithField("component", "file_store"),
	}
}

// BaseDir returns the root directory of the store
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

func (s *FileStore) path(parts ...string) string {
	return filepath.Join(append([]string{s.baseDir}, parts...)...)
}

// csvTable is a parsed CSV file with its header indexed by column name
type csvTable struct {
	columns map[string]int
	rows    [][]string
}

// get returns the named column of row, or "" when the column is absent
func (t *csvTable) get(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *csvTable) has(column string) bool {
	_, ok := t.columns[column]
	return ok
}

// readCSV loads a whole CSV file. A missing file is reported with os.ErrNotExist.
func readCSV(path string) (*csvTable, error) {
	f, err := os.Open(path) // #nosec G304 - paths are built from the configured data directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &csvTable{columns: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	table := &csvTable{columns: make(map[string]int, len(header))}
	for i, name := range header {
		table.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		table.rows = append(table.rows, row)
	}
	return table, nil
}

// writeCSVAtomic writes header and rows to a temporary file and renames it over path
func writeCSVAtomic(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// listStems returns the sorted base names, without extension, of the CSV files in dir
func listStems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var stems []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(stems)
	return stems, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatOptInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// parseNumber parses a number that may carry thousands separators or a percent sign
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// parseOptFloat returns nil for blank or unparsable cells
func parseOptFloat(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return nil
	}
	return &v
}

// parseOptInt returns nil for blank cells. Integral floats such as "812345.0" are accepted.
func parseOptInt(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	v := int64(f)
	return &v, nil
}
