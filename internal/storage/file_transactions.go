package storage

import (
	"fmt"
	"os"
	"strconv"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
)

var rawTransactionHeader = []string{"hash", "time", "result", "balance", "fee", "block_height"}

// SaveRawTransactions replaces the raw history file of a wallet.
// An empty history is not written, so a wallet without transactions has no file.
func (s *FileStore) SaveRawTransactions(address string, txs []models.RawTransaction) error {
	if len(txs) == 0 {
		s.logger.WithField("wallet", address).Warn("No transactions to save")
		return nil
	}

	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{
			tx.Hash,
			strconv.FormatInt(tx.Time, 10),
			strconv.FormatInt(tx.Result, 10),
			strconv.FormatInt(tx.Balance, 10),
			strconv.FormatInt(tx.Fee, 10),
			formatOptInt(tx.BlockHeight),
		})
	}

	path := s.path(rawTransactionsDir, address+".csv")
	if err := writeCSVAtomic(path, rawTransactionHeader, rows); err != nil {
		return fmt.Errorf("failed to save transactions for %s: %w", address, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"wallet":       address,
		"transactions": len(txs),
	}).Info("Saved raw transactions")
	return nil
}

// LoadRawTransactions reads the raw history of a wallet in file order
func (s *FileStore) LoadRawTransactions(address string) ([]models.RawTransaction, error) {
	path := s.path(rawTransactionsDir, address+".csv")
	table, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewMissingDataError(address, "raw transactions")
	}
	if err != nil {
		return nil, apperrors.NewParseError(path, err)
	}

	txs := make([]models.RawTransaction, 0, len(table.rows))
	for i, row := range table.rows {
		tx, err := parseRawTransaction(table, row)
		if err != nil {
			return nil, apperrors.NewParseError(path, fmt.Errorf("row %d: %w", i+2, err))
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ListRawWallets returns the wallets that have a raw history file
func (s *FileStore) ListRawWallets() ([]string, error) {
	return listStems(s.path(rawTransactionsDir))
}

func parseRawTransaction(table *csvTable, row []string) (models.RawTransaction, error) {
	tx := models.RawTransaction{Hash: table.get(row, "hash")}
	if tx.Hash == "" {
		return tx, fmt.Errorf("missing hash")
	}

	ints := []struct {
		column string
		dst    *int64
	}{
		{"time", &tx.Time},
		{"result", &tx.Result},
		{"balance", &tx.Balance},
		{"fee", &tx.Fee},
	}
	for _, f := range ints {
		v, err := parseOptInt(table.get(row, f.column))
		if err != nil {
			return tx, fmt.Errorf("invalid %s: %w", f.column, err)
		}
		if v != nil {
			*f.dst = *v
		}
	}

	height, err := parseOptInt(table.get(row, "block_height"))
	if err != nil {
		return tx, fmt.Errorf("invalid block_height: %w", err)
	}
	tx.BlockHeight = height
	return tx, nil
}
