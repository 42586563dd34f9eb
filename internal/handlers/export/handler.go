// Package export turns bill-card views into xlsx and csv downloads.
package export

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"billcard/internal/audit"
	"billcard/internal/handlers/billcard"
	"billcard/internal/ledger"
	"billcard/internal/logger"
	"billcard/internal/models"
	"billcard/internal/response"
	"billcard/internal/validation"
	"billcard/internal/websocket"
)

// Handler holds dependencies for export handlers.
type Handler struct {
	DB    *sql.DB
	Hub   *websocket.Hub
	Bills *billcard.Handler
}

var ledgerHeaders = []string{
	"#", "Date", "Transaction ID", "Type", "Quantity", "Running Balance",
	"Document Reference", "Source Reference", "Subinventory", "Username",
}

var listHeaders = []string{
	"Part Number", "Description", "Subinventory", "Last Date",
	"Total Quantity", "Quantity In Range", "Transactions", "Transactions In Range",
}

func format(r *http.Request, ve *validation.ValidationErrors) string {
	f := strings.ToLower(r.URL.Query().Get("format"))
	if f == "" {
		f = "xlsx"
	}
	validation.ValidateEnum(ve, "format", f, validation.ValidExportFormats)
	return f
}

// LedgerSheet lays out a bill card in display order under its part metadata.
func LedgerSheet(p *ledger.DateParser, card billcard.BillCard) Sheet {
	rangeLabel := "All history"
	if card.Range != nil {
		rangeLabel = card.Range.Label
	}
	reported := "unknown"
	if card.ReportedStock != nil {
		reported = card.ReportedStock.String()
	}
	meta := [][2]string{
		{"Part Number", card.PartNumber},
		{"Description", card.Description},
		{"Subinventory", card.Subinventory},
		{"Date Range", rangeLabel},
		{"Opening Balance", card.OpeningBalance.String()},
		{"Computed Balance", card.ComputedFinalBalance.String()},
		{"Reported Stock", reported},
	}
	if card.Mismatch != nil {
		meta = append(meta, [2]string{"Warning", "computed balance differs from reported stock by " + card.Mismatch.Difference.String()})
	}

	rows := make([][]interface{}, len(card.Rows))
	for i, row := range card.Rows {
		rows[i] = []interface{}{
			row.SequenceNumber,
			p.Format(row.RawDate),
			row.ID,
			row.TransactionTypeName,
			row.Quantity,
			row.RunningBalance,
			row.DocumentReference,
			row.SourceReference,
			row.Subinventory,
			row.Username,
		}
	}
	return Sheet{Name: "Bill Card", Meta: meta, Headers: ledgerHeaders, Rows: rows}
}

// ListSheet lays out grouped parts, keeping only selected part numbers when any are given.
func ListSheet(list billcard.PartList, subinventory string, selected []string) Sheet {
	keep := make(map[string]bool, len(selected))
	for _, s := range selected {
		keep[s] = true
	}
	rangeLabel := "All history"
	if list.Range != nil {
		rangeLabel = list.Range.Label
	}

	rows := make([][]interface{}, 0, len(list.Parts))
	for _, p := range list.Parts {
		if len(keep) > 0 && !keep[p.PartNumber] {
			continue
		}
		rows = append(rows, []interface{}{
			p.PartNumber,
			p.Representative.Description,
			p.Representative.Subinventory,
			p.LastDate,
			p.TotalQuantity,
			p.FilteredQuantity,
			p.TransactionCount,
			p.FilteredCount,
		})
	}
	meta := [][2]string{
		{"Subinventory", subinventory},
		{"Date Range", rangeLabel},
		{"Parts", strconv.Itoa(len(rows))},
	}
	return Sheet{Name: "Bills", Meta: meta, Headers: listHeaders, Rows: rows}
}

// ExportBill handles GET /api/v1/export/bills/{part}.
func (h *Handler) ExportBill(w http.ResponseWriter, r *http.Request, part string) {
	q, ve := billcard.ParseViewQuery(r.URL.Query(), part)
	validation.RequireField(ve, "part_number", q.Part)
	f := format(r, ve)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	card, err := h.Bills.BuildBillCard(r.Context(), q)
	if err != nil {
		billcard.WriteError(w, r, err)
		return
	}
	sheet := LedgerSheet(h.Bills.Engine.Parser(), card)
	label := ""
	if card.Range != nil {
		label = card.Range.Label
	}
	h.write(w, r, f, "billcard_"+card.PartNumber, sheet, models.DataExport{
		EntityType:  "bill",
		RecordCount: len(sheet.Rows),
		RangeLabel:  label,
	})
}

// ExportBills handles GET /api/v1/export/bills.
func (h *Handler) ExportBills(w http.ResponseWriter, r *http.Request) {
	q, ve := billcard.ParseViewQuery(r.URL.Query(), "")
	f := format(r, ve)
	var selected []string
	if raw := r.URL.Query().Get("parts"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				validation.ValidatePartNumber(ve, "parts", p)
				selected = append(selected, p)
			}
		}
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	list, err := h.Bills.BuildPartList(r.Context(), q, false)
	if err != nil {
		billcard.WriteError(w, r, err)
		return
	}
	sheet := ListSheet(list, q.Subinventory, selected)
	label := ""
	if list.Range != nil {
		label = list.Range.Label
	}
	name := "bills"
	if q.Subinventory != "" {
		name += "_" + q.Subinventory
	}
	h.write(w, r, f, name, sheet, models.DataExport{
		EntityType:  "bills",
		RecordCount: len(sheet.Rows),
		RangeLabel:  label,
	})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, f, base string, sheet Sheet, exp models.DataExport) {
	exp.ID = uuid.NewString()
	exp.Format = f
	filename := validation.SanitizeFilename(base + "." + f)

	var err error
	if f == "csv" {
		err = WriteCSVResponse(w, filename, sheet)
	} else {
		err = WriteExcel(w, filename, sheet)
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("export_id", exp.ID).Msg("export failed")
		response.Err(w, "failed to write export", http.StatusInternalServerError)
		return
	}
	audit.LogDataExport(h.DB, h.Hub, r, exp)
}
