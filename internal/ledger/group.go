package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// GroupedPart is one list row per part number.
type GroupedPart struct {
	Representative   Transaction     `json:"representative"`
	PartNumber       string          `json:"part_number"`
	TotalQuantity    decimal.Decimal `json:"total_quantity"`
	FilteredQuantity decimal.Decimal `json:"filtered_quantity"`
	TransactionCount int             `json:"transaction_count"`
	FilteredCount    int             `json:"filtered_count"`
	Transactions     []Transaction   `json:"transactions"`
}

// GroupByPart collapses transactions into one row per part number. TotalQuantity
// always sums the whole group; FilteredQuantity sums only rows inside filter.
// Groups with nothing inside filter sort last, by part number.
func GroupByPart(txs []Transaction, filter *DateRange) []GroupedPart {
	index := make(map[string]int)
	var groups []GroupedPart
	var hasLatest []bool
	for _, tx := range txs {
		i, ok := index[tx.PartNumber]
		if !ok {
			i = len(groups)
			index[tx.PartNumber] = i
			groups = append(groups, GroupedPart{PartNumber: tx.PartNumber})
			hasLatest = append(hasLatest, false)
		}
		g := &groups[i]
		g.Transactions = append(g.Transactions, tx)
		g.TransactionCount++
		g.TotalQuantity = g.TotalQuantity.Add(tx.Quantity)

		if filter != nil && !filter.Contains(tx.Timestamp) {
			continue
		}
		g.FilteredCount++
		g.FilteredQuantity = g.FilteredQuantity.Add(tx.Quantity)
		if !hasLatest[i] || chronological(tx, g.Representative) > 0 {
			g.Representative = tx
			hasLatest[i] = true
		}
	}

	for i := range groups {
		if hasLatest[i] {
			continue
		}
		g := &groups[i]
		for j, tx := range g.Transactions {
			if j == 0 || chronological(tx, g.Representative) > 0 {
				g.Representative = tx
			}
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ga, gb := groups[a], groups[b]
		if (ga.FilteredCount > 0) != (gb.FilteredCount > 0) {
			return ga.FilteredCount > 0
		}
		if ga.FilteredCount == 0 {
			return ga.PartNumber < gb.PartNumber
		}
		if c := chronological(ga.Representative, gb.Representative); c != 0 {
			return c > 0
		}
		return ga.PartNumber < gb.PartNumber
	})
	if groups == nil {
		groups = []GroupedPart{}
	}
	return groups
}

// WithinRange returns the transactions falling inside r, preserving order.
func WithinRange(txs []Transaction, r *DateRange) []Transaction {
	if r == nil {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if r.Contains(tx.Timestamp) {
			out = append(out, tx)
		}
	}
	return out
}
