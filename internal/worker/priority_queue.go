package worker

import "sort"

// WalletPriority pairs a wallet with its richlist rank
type WalletPriority struct {
	Address string
	Rank    int // Lower rank = higher priority
}

// PrioritizeWallets orders wallets by ascending rank, keeping input order among equal ranks
// and dropping duplicates.
func PrioritizeWallets(wallets []string, rank func(address string) int) []string {
	seen := make(map[string]struct{}, len(wallets))
	list := make([]WalletPriority, 0, len(wallets))
	for _, w := range wallets {
		if _, ok := seen[w]; ok || w == "" {
			continue
		}
		seen[w] = struct{}{}
		list = append(list, WalletPriority{Address: w, Rank: rank(w)})
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Rank < list[j].Rank
	})

	out := make([]string, len(list))
	for i, wp := range list {
		out[i] = wp.Address
	}
	return out
}
