package models

import "github.com/whale-tracker/internal/types"

// RichlistEntry is one ranked wallet in a richlist snapshot
type RichlistEntry struct {
	Rank    int    `json:"rank" csv:"rank"`
	Address string `json:"address" csv:"btc_address"`
	LastIn  string `json:"lastIn,omitempty" csv:"last_in"`
	LastOut string `json:"lastOut,omitempty" csv:"last_out"`
}

// RichlistSnapshot is the most recent ranked listing of tracked wallets
type RichlistSnapshot struct {
	Date    types.Date
	Entries []RichlistEntry
	byAddr  map[string]int
}

// NewRichlistSnapshot indexes entries by address. The first entry for an address wins.
func NewRichlistSnapshot(date types.Date, entries []RichlistEntry) *RichlistSnapshot {
	s := &RichlistSnapshot{
		Date:    date,
		Entries: entries,
		byAddr:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, ok := s.byAddr[e.Address]; !ok {
			s.byAddr[e.Address] = e.Rank
		}
	}
	return s
}

// Rank returns the wallet's rank, or RankSentinel when the wallet is not listed
func (s *RichlistSnapshot) Rank(address string) int {
	if s == nil {
		return types.RankSentinel
	}
	if rank, ok := s.byAddr[address]; ok && rank > 0 {
		return rank
	}
	return types.RankSentinel
}

// Addresses returns the listed wallets in rank order
func (s *RichlistSnapshot) Addresses() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Address)
	}
	return out
}

// IsEmpty reports whether the snapshot lists no wallets
func (s *RichlistSnapshot) IsEmpty() bool {
	return s == nil || len(s.Entries) == 0
}
