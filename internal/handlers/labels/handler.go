// Package labels renders QR labels for parts, singly as PNG or as a printable sheet.
package labels

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/xuri/excelize/v2"

	"billcard/internal/audit"
	"billcard/internal/handlers/billcard"
	"billcard/internal/logger"
	"billcard/internal/models"
	"billcard/internal/response"
	"billcard/internal/validation"
	"billcard/internal/websocket"
)

const (
	defaultColumns = 3
	maxColumns     = 8
	sheetName      = "Labels"

	captionRowHeight = 30
)

// Handler holds dependencies for label handlers.
type Handler struct {
	DB    *sql.DB
	Hub   *websocket.Hub
	Bills *billcard.Handler
	// Size is the default label edge in pixels.
	Size int
	// BaseURL, when set, makes labels encode a link to the part's bill card
	// instead of the bare part number.
	BaseURL string
}

// Content is what a part's QR code encodes.
func Content(baseURL, part string) string {
	if baseURL == "" {
		return part
	}
	return strings.TrimRight(baseURL, "/") + "/bills/" + url.PathEscape(part)
}

func (h *Handler) size(ve *validation.ValidationErrors, requested int) int {
	if requested == 0 {
		requested = h.Size
	}
	if requested == 0 {
		requested = 256
	}
	validation.ValidateIntRange(ve, "size", requested, validation.MinLabelSize, validation.MaxLabelSize)
	return requested
}

// Encode renders a part's QR code as PNG.
func (h *Handler) Encode(part string, size int) ([]byte, error) {
	png, err := qrcode.Encode(Content(h.BaseURL, part), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr for %s: %w", part, err)
	}
	return png, nil
}

// LabelPNG handles GET /api/v1/labels/{part}.png.
func (h *Handler) LabelPNG(w http.ResponseWriter, r *http.Request, part string) {
	ve := &validation.ValidationErrors{}
	part = strings.TrimSpace(part)
	validation.RequireField(ve, "part_number", part)
	validation.ValidatePartNumber(ve, "part_number", part)
	requested := 0
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ve.Add("size", "must be an integer")
		}
		requested = n
	}
	size := h.size(ve, requested)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	png, err := h.Encode(part, size)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("qr encode failed")
		response.Err(w, "failed to render label", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

// LabelSheet handles POST /api/v1/labels/sheet: a workbook with one QR label per
// part laid out in a grid, each captioned with its part number and description.
func (h *Handler) LabelSheet(w http.ResponseWriter, r *http.Request) {
	var req models.LabelSheetRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ve := &validation.ValidationErrors{}
	parts := make([]string, 0, len(req.Parts))
	seen := make(map[string]bool, len(req.Parts))
	for _, p := range req.Parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		validation.ValidatePartNumber(ve, "parts", p)
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		ve.Add("parts", "is required")
	}
	if len(parts) > validation.MaxLabelParts {
		ve.Add("parts", fmt.Sprintf("must contain at most %d parts", validation.MaxLabelParts))
	}
	columns := req.Columns
	if columns == 0 {
		columns = defaultColumns
	}
	validation.ValidateIntRange(ve, "columns", columns, 1, maxColumns)
	size := h.size(ve, req.Size)
	validation.ValidateMaxLength(ve, "subinventory", req.Subinventory, 50)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	captions := h.captions(r, req.Subinventory)
	f, err := h.buildSheet(parts, captions, columns, size)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("label sheet failed")
		response.Err(w, "failed to build label sheet", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		response.Err(w, "failed to write label sheet", http.StatusInternalServerError)
		return
	}
	id := uuid.NewString()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "labels.xlsx"))
	w.Write(buf.Bytes())

	audit.LogAudit(h.DB, h.Hub, r, audit.Entry{
		Action:   audit.ActionPrint,
		Module:   "label",
		RecordID: id,
		Summary:  fmt.Sprintf("Printed %d label(s): %s", len(parts), summarizeParts(parts)),
	})
}

// captions maps part numbers to descriptions. Labels still print when the
// transaction API cannot be reached; they just carry no description.
func (h *Handler) captions(r *http.Request, subinventory string) map[string]string {
	out := map[string]string{}
	if h.Bills == nil {
		return out
	}
	list, err := h.Bills.BuildPartList(r.Context(), billcard.ViewQuery{Subinventory: subinventory, All: true}, false)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("label descriptions unavailable")
		return out
	}
	for _, p := range list.Parts {
		out[p.PartNumber] = p.Representative.Description
	}
	return out
}

func (h *Handler) buildSheet(parts []string, captions map[string]string, columns, size int) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}
	captionStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top", WrapText: true},
		Font:      &excelize.Font{Bold: true},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	// column width is in characters (~7px), row height in points (0.75pt per px)
	width := float64(size)/7 + 2
	for c := 1; c <= columns; c++ {
		col, _ := excelize.ColumnNumberToName(c)
		f.SetColWidth(sheetName, col, col, width)
	}

	for i, part := range parts {
		block := i / columns
		imageRow := block*2 + 1
		captionRow := imageRow + 1
		cell, _ := excelize.CoordinatesToCellName(i%columns+1, imageRow)
		caption, _ := excelize.CoordinatesToCellName(i%columns+1, captionRow)

		png, err := h.Encode(part, size)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.AddPictureFromBytes(sheetName, cell, &excelize.Picture{
			Extension: ".png",
			File:      png,
			Format: &excelize.GraphicOptions{
				AltText:     part,
				OffsetX:     4,
				OffsetY:     4,
				Positioning: "oneCell",
			},
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("place label %s: %w", part, err)
		}
		if err := f.SetRowHeight(sheetName, imageRow, imageRowHeight(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("size row %d: %w", imageRow, err)
		}
		if err := f.SetRowHeight(sheetName, captionRow, captionRowHeight); err != nil {
			f.Close()
			return nil, fmt.Errorf("size row %d: %w", captionRow, err)
		}

		text := part
		if d := captions[part]; d != "" {
			text += "\n" + d
		}
		f.SetCellValue(sheetName, caption, text)
		f.SetCellStyle(sheetName, caption, caption, captionStyle)
	}
	return f, nil
}

// imageRowHeight fits a label of size px, capped at the tallest row a
// worksheet accepts. Oversized labels overlap the caption row.
func imageRowHeight(size int) float64 {
	h := float64(size)*0.75 + 6
	if h > excelize.MaxRowHeight {
		return excelize.MaxRowHeight
	}
	return h
}

func summarizeParts(parts []string) string {
	const shown = 5
	if len(parts) <= shown {
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(parts[:shown], ", "), len(parts)-shown)
}
