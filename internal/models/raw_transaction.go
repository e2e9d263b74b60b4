package models

import (
	"time"

	"github.com/whale-tracker/internal/types"
)

// RawTransaction is one ledger-reported movement of a wallet, as returned by the ledger API
type RawTransaction struct {
	Hash        string `json:"hash" csv:"hash"`
	Time        int64  `json:"time" csv:"time"`       // Unix seconds
	Result      int64  `json:"result" csv:"result"`   // Signed satoshi delta for the wallet
	Balance     int64  `json:"balance" csv:"balance"` // Satoshi balance after the transaction
	Fee         int64  `json:"fee" csv:"fee"`
	BlockHeight *int64 `json:"block_height,omitempty" csv:"block_height"` // Unset for unconfirmed transactions
}

// Timestamp returns the transaction time in UTC
func (t *RawTransaction) Timestamp() time.Time {
	return time.Unix(t.Time, 0).UTC()
}

// Date returns the UTC calendar day of the transaction
func (t *RawTransaction) Date() types.Date {
	return types.DateFromUnix(t.Time)
}

// DedupeTransactions removes repeated hashes, keeping the first occurrence and the original order
func DedupeTransactions(txs []RawTransaction) []RawTransaction {
	seen := make(map[string]struct{}, len(txs))
	out := make([]RawTransaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := seen[tx.Hash]; ok {
			continue
		}
		seen[tx.Hash] = struct{}{}
		out = append(out, tx)
	}
	return out
}
