package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MismatchTolerance is the largest difference between computed and reported stock
// still treated as agreement; upstream quantities can carry fractional noise.
var MismatchTolerance = decimal.NewFromFloat(0.01)

// RunningBalanceRow is a transaction annotated for bill-card display.
type RunningBalanceRow struct {
	Transaction
	SequenceNumber       int              `json:"sequence_number"`
	RunningBalance       decimal.Decimal  `json:"running_balance"`
	IsFilteredView       bool             `json:"is_filtered_view"`
	ReportedStock        *decimal.Decimal `json:"reported_stock"`
	ComputedFinalBalance decimal.Decimal  `json:"computed_final_balance"`
}

// Mismatch describes a divergence between the computed final balance and the reported stock.
type Mismatch struct {
	Computed   decimal.Decimal `json:"computed"`
	Reported   decimal.Decimal `json:"reported"`
	Difference decimal.Decimal `json:"difference"`
}

// Ledger is the bill card for one part.
type Ledger struct {
	Rows                 []RunningBalanceRow `json:"rows"`
	OpeningBalance       decimal.Decimal     `json:"opening_balance"`
	ComputedFinalBalance decimal.Decimal     `json:"computed_final_balance"`
	ReportedStock        *decimal.Decimal    `json:"reported_stock"`
	Mismatch             *Mismatch           `json:"mismatch"`
	IsFilteredView       bool                `json:"is_filtered_view"`
	Filter               *DateRange          `json:"filter,omitempty"`
	HistoryCount         int                 `json:"history_count"`
}

// BalanceInput parameterizes ComputeRunningBalances.
type BalanceInput struct {
	// Filter restricts the displayed rows; nil shows the whole history.
	Filter *DateRange
	// Opening overrides the opening balance derived from begin-balance snapshots.
	Opening *decimal.Decimal
	// ReportedStock is the API's current stock; nil skips reconciliation.
	ReportedStock *decimal.Decimal
}

// OpeningBalance returns the begin balance of the snapshot with the earliest
// snapshot timestamp, or zero when no transaction carries one. Snapshots whose
// timestamp cannot be parsed rank after dated ones.
func OpeningBalance(parser *DateParser, txs []Transaction) decimal.Decimal {
	var (
		best     *decimal.Decimal
		bestTime time.Time
		bestOK   bool
	)
	for _, tx := range txs {
		if tx.BeginBalance == nil {
			continue
		}
		t, ok := parser.Parse(tx.BeginBalanceRawTime)
		if best == nil || (ok && (!bestOK || t.Before(bestTime))) {
			best, bestTime, bestOK = tx.BeginBalance, t, ok
		}
	}
	if best == nil {
		return decimal.Zero
	}
	return *best
}

// ComputeRunningBalances builds the bill card. Balances always accumulate over the
// complete history in chronological order; the filter only narrows what is shown.
func (e *Engine) ComputeRunningBalances(all []Transaction, in BalanceInput) (Ledger, error) {
	if in.Filter != nil {
		if err := in.Filter.Validate(); err != nil {
			return Ledger{}, err
		}
	}

	opening := decimal.Zero
	if in.Opening != nil {
		opening = *in.Opening
	} else {
		opening = OpeningBalance(e.parser, all)
	}

	out := Ledger{
		Rows:           []RunningBalanceRow{},
		OpeningBalance: opening,
		ReportedStock:  in.ReportedStock,
		Filter:         in.Filter,
		HistoryCount:   len(all),
	}
	if len(all) == 0 {
		out.ComputedFinalBalance = opening
		return out, nil
	}

	ordered := slices.Clone(all)
	slices.SortStableFunc(ordered, chronological)

	rows := make([]RunningBalanceRow, len(ordered))
	balance := opening
	for i, tx := range ordered {
		balance = balance.Add(tx.Quantity)
		rows[i] = RunningBalanceRow{Transaction: tx, RunningBalance: balance}
	}
	out.ComputedFinalBalance = balance

	if in.ReportedStock != nil {
		diff := balance.Sub(*in.ReportedStock)
		if diff.Abs().GreaterThan(MismatchTolerance) {
			out.Mismatch = &Mismatch{Computed: balance, Reported: *in.ReportedStock, Difference: diff}
		}
	}

	display := rows
	if in.Filter != nil {
		display = make([]RunningBalanceRow, 0, len(rows))
		for _, r := range rows {
			if in.Filter.Contains(r.Timestamp) {
				display = append(display, r)
			}
		}
	}
	out.IsFilteredView = len(display) < len(rows)

	slices.SortStableFunc(display, displayOrder)
	for i := range display {
		display[i].SequenceNumber = i + 1
		display[i].IsFilteredView = out.IsFilteredView
		display[i].ReportedStock = in.ReportedStock
		display[i].ComputedFinalBalance = balance
	}
	out.Rows = display
	return out, nil
}

// displayOrder is newest first; at an identical timestamp stock leaves before it is
// replenished, then higher ids first.
func displayOrder(a, b RunningBalanceRow) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	if ao, bo := a.Outbound(), b.Outbound(); ao != bo {
		if ao {
			return -1
		}
		return 1
	}
	if c := compareID(b.ID, a.ID); c != 0 {
		return c
	}
	return b.Seq - a.Seq
}
