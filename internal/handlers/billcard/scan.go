package billcard

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"billcard/internal/audit"
	"billcard/internal/ledger"
	"billcard/internal/models"
	"billcard/internal/response"
	"billcard/internal/validation"
)

// maxScanMatches caps the partial matches returned for one scan.
const maxScanMatches = 50

// ScanCode extracts the part number from a scanned payload. Labels printed with a
// base URL encode a link ending in /bills/{part}; anything else is taken as-is.
func ScanCode(raw string) string {
	code := strings.TrimSpace(raw)
	if u, err := url.Parse(code); err == nil && u.Scheme != "" && u.Host != "" {
		path := u.EscapedPath()
		if i := strings.LastIndex(path, "/bills/"); i >= 0 {
			seg := strings.Trim(path[i+len("/bills/"):], "/")
			if p, err := url.PathUnescape(strings.SplitN(seg, "/", 2)[0]); err == nil && p != "" {
				return p
			}
		}
	}
	return code
}

// Scan handles GET /api/v1/scan/{code}.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request, raw string) {
	code := ScanCode(raw)
	if code == "" {
		response.Err(w, "missing code", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateMaxLength(ve, "code", code, validation.MaxSearchLength)
	sub := strings.TrimSpace(r.URL.Query().Get("subinventory"))
	validation.ValidateMaxLength(ve, "subinventory", sub, 50)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	res, _, err := h.fetch(r.Context(), sub, "")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var exact, partial []models.ScanResult
	codeLower := strings.ToLower(code)
	for _, g := range ledger.GroupByPart(res.Transactions, nil) {
		isExact := strings.EqualFold(g.PartNumber, code)
		if !isExact && !strings.Contains(strings.ToLower(g.PartNumber), codeLower) {
			continue
		}
		result := models.ScanResult{
			Type:  "part",
			ID:    g.PartNumber,
			Label: fmt.Sprintf("%s - %s", g.PartNumber, g.Representative.Description),
			Link:  "/bills/" + url.PathEscape(g.PartNumber),
			Exact: isExact,
		}
		if isExact {
			exact = append(exact, result)
		} else {
			partial = append(partial, result)
		}
	}
	sort.Slice(partial, func(i, j int) bool { return partial[i].ID < partial[j].ID })
	if len(partial) > maxScanMatches {
		partial = partial[:maxScanMatches]
	}
	results := scanResults(exact, partial)

	audit.LogAudit(h.DB, nil, r, audit.Entry{
		Action:   audit.ActionScan,
		Module:   "scan",
		RecordID: code,
		Summary:  fmt.Sprintf("Scanned %q: %d exact, %d partial", code, len(exact), len(partial)),
	})
	response.JSON(w, map[string]interface{}{"results": results, "code": code})
}
