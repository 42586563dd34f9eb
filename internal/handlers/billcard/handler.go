// Package billcard serves the bill-card views: the grouped part list, a part's
// running-balance ledger, its default date window, cache refresh and code scans.
package billcard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billcard/internal/cache"
	"billcard/internal/ledger"
	"billcard/internal/logger"
	"billcard/internal/models"
	"billcard/internal/response"
	"billcard/internal/upstream"
	"billcard/internal/validation"
	"billcard/internal/websocket"
)

// ErrNotFound is returned when the transaction API knows nothing about a part.
var ErrNotFound = errors.New("no transactions found")

// ErrUpstream wraps failures talking to the transaction API.
var ErrUpstream = errors.New("transaction API unavailable")

// Handler holds dependencies for bill-card handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Engine *ledger.Engine
	Cache  *cache.Store
	Loader *cache.Loader
}

// ViewQuery is the parsed query string shared by list, detail and export requests.
type ViewQuery struct {
	Subinventory string
	Part         string
	Start        string
	End          string
	Search       string
	// All disables the default latest-month window.
	All     bool
	Opening *decimal.Decimal
}

// ParseViewQuery reads and validates the common bill-card parameters.
func ParseViewQuery(q url.Values, part string) (ViewQuery, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	vq := ViewQuery{
		Subinventory: strings.TrimSpace(q.Get("subinventory")),
		Part:         strings.TrimSpace(part),
		Start:        strings.TrimSpace(q.Get("start_date")),
		End:          strings.TrimSpace(q.Get("end_date")),
		Search:       q.Get("search"),
		All:          q.Get("all") == "true",
	}
	validation.ValidateMaxLength(ve, "subinventory", vq.Subinventory, 50)
	validation.ValidatePartNumber(ve, "part_number", vq.Part)
	validation.ValidateMaxLength(ve, "search", vq.Search, validation.MaxSearchLength)
	validation.ValidateDate(ve, "start_date", vq.Start)
	validation.ValidateDate(ve, "end_date", vq.End)
	if raw := strings.TrimSpace(q.Get("opening")); raw != "" {
		validation.ValidateDecimal(ve, "opening", raw)
		if d, err := decimal.NewFromString(raw); err == nil {
			vq.Opening = &d
		}
	}
	return vq, ve
}

// RangeInfo describes the window a view was computed for.
type RangeInfo struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Label  string `json:"label"`
	Source string `json:"source"`
}

func newRangeInfo(r *ledger.DateRange, source string) *RangeInfo {
	if r == nil {
		return nil
	}
	return &RangeInfo{
		Start:  r.Start.Format("2006-01-02"),
		End:    r.End.Format("2006-01-02"),
		Label:  r.Label(),
		Source: source,
	}
}

// window resolves the display filter for q. nil means the whole history.
func (h *Handler) window(txs []ledger.Transaction, q ViewQuery) (*ledger.DateRange, string, error) {
	if q.Start != "" || q.End != "" {
		r, err := h.Engine.ResolveWindow(txs, q.Start, q.End)
		return r, "explicit", err
	}
	if q.All {
		return nil, "", nil
	}
	r, err := h.Engine.ResolveWindow(txs, "", "")
	return r, "latest_month", err
}

// fetch loads and normalizes the records for subinventory/part through the cache.
func (h *Handler) fetch(ctx context.Context, subinventory, part string) (ledger.NormalizeResult, time.Time, error) {
	log := logger.FromContext(ctx)
	raw, fetchedAt, hit, err := h.Loader.Load(ctx, subinventory, part)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ledger.NormalizeResult{}, time.Time{}, err
		}
		return ledger.NormalizeResult{}, time.Time{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	res := h.Engine.Normalize(raw)
	evt := log.Debug()
	if res.Dropped > 0 {
		evt = log.Info()
	}
	evt.Str("subinventory", subinventory).
		Str("part", part).
		Bool("cache_hit", hit).
		Int("records", res.Total).
		Int("dropped", res.Dropped).
		Msg("transactions loaded")
	return res, fetchedAt, nil
}

// BillCard is the ledger for one part with its source metadata.
type BillCard struct {
	PartNumber   string `json:"part_number"`
	Description  string `json:"description"`
	Subinventory string `json:"subinventory"`
	ledger.Ledger
	Range          *RangeInfo `json:"range"`
	TotalRecords   int        `json:"total_records"`
	DroppedRecords int        `json:"dropped_records"`
	FetchedAt      time.Time  `json:"fetched_at"`
}

// BuildBillCard fetches q.Part's history and computes its running balances.
func (h *Handler) BuildBillCard(ctx context.Context, q ViewQuery) (BillCard, error) {
	res, fetchedAt, err := h.fetch(ctx, q.Subinventory, q.Part)
	if err != nil {
		return BillCard{}, err
	}
	if res.Total == 0 {
		return BillCard{}, fmt.Errorf("%w for part %s", ErrNotFound, q.Part)
	}

	txs := make([]ledger.Transaction, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		if strings.EqualFold(tx.PartNumber, q.Part) {
			txs = append(txs, tx)
		}
	}

	filter, source, err := h.window(txs, q)
	if err != nil {
		return BillCard{}, err
	}
	l, err := h.Engine.ComputeRunningBalances(txs, ledger.BalanceInput{
		Filter:        filter,
		Opening:       q.Opening,
		ReportedStock: res.ReportedStock,
	})
	if err != nil {
		return BillCard{}, err
	}
	if l.Mismatch != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("part", q.Part).
			Str("subinventory", q.Subinventory).
			Str("computed", l.Mismatch.Computed.String()).
			Str("reported", l.Mismatch.Reported.String()).
			Str("difference", l.Mismatch.Difference.String()).
			Msg("computed balance does not match reported stock")
	}

	card := BillCard{
		PartNumber:     q.Part,
		Subinventory:   q.Subinventory,
		Ledger:         l,
		Range:          newRangeInfo(filter, source),
		TotalRecords:   res.Total,
		DroppedRecords: res.Dropped,
		FetchedAt:      fetchedAt,
	}
	var latest time.Time
	for _, tx := range txs {
		if tx.Description != "" && !tx.Timestamp.Before(latest) {
			card.Description, latest = tx.Description, tx.Timestamp
		}
		if card.Subinventory == "" {
			card.Subinventory = tx.Subinventory
		}
	}
	return card, nil
}

// PartRow is one grouped list row. Transactions is only filled on request.
type PartRow struct {
	ledger.GroupedPart
	Transactions []ledger.Transaction `json:"transactions,omitempty"`
	LastDate     string               `json:"last_date"`
}

// PartList is the grouped, filtered and searched part list for a subinventory.
type PartList struct {
	Parts          []PartRow  `json:"parts"`
	Range          *RangeInfo `json:"range"`
	TotalRecords   int        `json:"total_records"`
	DroppedRecords int        `json:"dropped_records"`
	FetchedAt      time.Time  `json:"fetched_at"`
}

// BuildPartList groups a subinventory's transactions by part inside the active
// window, then applies the search.
func (h *Handler) BuildPartList(ctx context.Context, q ViewQuery, withTransactions bool) (PartList, error) {
	res, fetchedAt, err := h.fetch(ctx, q.Subinventory, "")
	if err != nil {
		return PartList{}, err
	}
	filter, source, err := h.window(res.Transactions, q)
	if err != nil {
		return PartList{}, err
	}
	groups := h.Engine.ListParts(res.Transactions, filter, q.Search)
	rows := make([]PartRow, len(groups))
	for i, g := range groups {
		rows[i] = PartRow{
			GroupedPart: g,
			LastDate:    h.Engine.Parser().Format(g.Representative.RawDate),
		}
		if withTransactions {
			rows[i].Transactions = g.Transactions
		}
	}
	return PartList{
		Parts:          rows,
		Range:          newRangeInfo(filter, source),
		TotalRecords:   res.Total,
		DroppedRecords: res.Dropped,
		FetchedAt:      fetchedAt,
	}, nil
}

// WriteError maps view-building errors onto HTTP responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var se *upstream.StatusError
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, context.Canceled):
		log.Debug().Msg("request cancelled by client")
	case errors.Is(err, ledger.ErrInvalidRange):
		response.Err(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		response.Err(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &se):
		log.Error().Err(err).Int("upstream_status", se.StatusCode).Msg("transaction API error")
		response.Err(w, fmt.Sprintf("transaction API returned %d", se.StatusCode), http.StatusBadGateway)
	case errors.Is(err, ErrUpstream):
		log.Error().Err(err).Msg("transaction API unreachable")
		response.Err(w, ErrUpstream.Error(), http.StatusBadGateway)
	default:
		log.Error().Err(err).Msg("request failed")
		response.Err(w, "internal error", http.StatusInternalServerError)
	}
}

// scanResults sorts exact matches ahead of partial ones.
func scanResults(exact, partial []models.ScanResult) []models.ScanResult {
	out := make([]models.ScanResult, 0, len(exact)+len(partial))
	out = append(out, exact...)
	return append(out, partial...)
}
