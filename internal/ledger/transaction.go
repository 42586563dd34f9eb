// Package ledger turns raw inventory transaction records into bill-card views:
// normalized transactions, running balances reconciled against reported stock,
// per-part aggregates and free-text search.
package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billcard/internal/models"
)

// Transaction is one normalized inventory movement.
type Transaction struct {
	ID                  string           `json:"id"`
	Timestamp           time.Time        `json:"timestamp"`
	RawDate             string           `json:"raw_date"`
	Quantity            decimal.Decimal  `json:"quantity"`
	PartNumber          string           `json:"part_number"`
	Description         string           `json:"description"`
	Subinventory        string           `json:"subinventory"`
	DocumentReference   string           `json:"document_reference"`
	SourceReference     string           `json:"source_reference"`
	TransactionTypeName string           `json:"transaction_type_name"`
	Username            string           `json:"username"`
	BeginBalance        *decimal.Decimal `json:"begin_balance,omitempty"`
	BeginBalanceRawTime string           `json:"begin_balance_timestamp,omitempty"`
	Seq                 int              `json:"-"`
}

// Outbound reports whether the movement takes stock out.
func (t Transaction) Outbound() bool {
	return t.Quantity.IsNegative()
}

// NormalizeResult is the outcome of shaping one API response.
type NormalizeResult struct {
	Transactions  []Transaction
	Total         int
	Dropped       int
	ReportedStock *decimal.Decimal
}

// Normalizer maps raw API records into Transactions.
type Normalizer struct {
	parser *DateParser
}

// NewNormalizer returns a Normalizer using parser for transaction dates.
func NewNormalizer(parser *DateParser) *Normalizer {
	return &Normalizer{parser: parser}
}

// Normalize shapes raw records, dropping those whose date cannot be parsed or
// that carry no part number. The input is not modified and order is kept.
func (n *Normalizer) Normalize(raw []models.RawTransaction) NormalizeResult {
	res := NormalizeResult{Total: len(raw), Transactions: make([]Transaction, 0, len(raw))}
	for i, r := range raw {
		if res.ReportedStock == nil {
			if d, ok := parseQuantity(r.CurrentStock.String()); ok {
				res.ReportedStock = &d
			}
		}

		rawDate := r.TransactionDate.String()
		ts, ok := n.parser.Parse(rawDate)
		part := r.PartNumber.String()
		if !ok || part == "" {
			res.Dropped++
			continue
		}

		qty, _ := parseQuantity(r.TransactionQuantity.String())
		tx := Transaction{
			ID:                  r.Identifier(),
			Timestamp:           ts,
			RawDate:             rawDate,
			Quantity:            qty,
			PartNumber:          part,
			Description:         r.Description.String(),
			Subinventory:        r.Subinventory.String(),
			DocumentReference:   r.DocumentReference.String(),
			SourceReference:     r.SourceReference.String(),
			TransactionTypeName: r.TransactionTypeName.String(),
			Username:            r.Username.String(),
			Seq:                 i,
		}
		if b, ok := parseQuantity(r.BeginQty.String()); ok {
			tx.BeginBalance = &b
			tx.BeginBalanceRawTime = r.BeginQtyTimestamp.String()
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

// parseQuantity reads a numeric string; empty or garbage yields zero and false.
func parseQuantity(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// compareID orders ids numerically when both are integers, otherwise lexically.
func compareID(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// chronological is the forward accumulation order: timestamp, then id, then input position.
func chronological(a, b Transaction) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := compareID(a.ID, b.ID); c != 0 {
		return c
	}
	return a.Seq - b.Seq
}
