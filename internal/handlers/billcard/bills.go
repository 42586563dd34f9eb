package billcard

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"billcard/internal/audit"
	"billcard/internal/cache"
	"billcard/internal/ledger"
	"billcard/internal/logger"
	"billcard/internal/response"
	"billcard/internal/validation"
)

// ListBills handles GET /api/v1/bills.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	q, ve := ParseViewQuery(r.URL.Query(), "")
	page, limit := validation.Pagination(ve, r.URL.Query())
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	list, err := h.BuildPartList(r.Context(), q, r.URL.Query().Get("include") == "transactions")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	total := len(list.Parts)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	list.Parts = list.Parts[start:end]
	response.JSONMeta(w, list, total, page, limit)
}

// GetBill handles GET /api/v1/bills/{part}.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request, part string) {
	q, ve := ParseViewQuery(r.URL.Query(), part)
	validation.RequireField(ve, "part_number", q.Part)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	card, err := h.BuildBillCard(r.Context(), q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.JSONCached(w, r, card)
}

// GetBillRange handles GET /api/v1/bills/{part}/range and returns the window a
// bill card opens with: the latest month, or the fallback span when nothing is dated.
func (h *Handler) GetBillRange(w http.ResponseWriter, r *http.Request, part string) {
	q, ve := ParseViewQuery(r.URL.Query(), part)
	validation.RequireField(ve, "part_number", q.Part)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	res, _, err := h.fetch(r.Context(), q.Subinventory, q.Part)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	txs := make([]ledger.Transaction, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		if strings.EqualFold(tx.PartNumber, q.Part) {
			txs = append(txs, tx)
		}
	}

	resolver := h.Engine.Resolver()
	if rng, ok := resolver.LatestMonthWindow(txs); ok {
		response.JSON(w, newRangeInfo(&rng, "latest_month"))
		return
	}
	if rng, ok := resolver.DefaultWindow(txs); ok {
		response.JSON(w, newRangeInfo(&rng, "fallback"))
		return
	}
	response.JSON(w, RangeInfo{Source: "none"})
}

// RefreshBills handles POST /api/v1/bills/refresh. It drops cached transaction
// sets so the next view refetches, and tells connected viewers to reload.
func (h *Handler) RefreshBills(w http.ResponseWriter, r *http.Request) {
	ve := &validation.ValidationErrors{}
	sub := strings.TrimSpace(r.URL.Query().Get("subinventory"))
	part := strings.TrimSpace(r.URL.Query().Get("part"))
	validation.ValidateMaxLength(ve, "subinventory", sub, 50)
	validation.ValidatePartNumber(ve, "part", part)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	var invalidated int
	switch {
	case part != "":
		// the list view for the subinventory holds the part's rows too
		for _, key := range []string{cache.Key(sub, part), cache.Key(sub, "")} {
			if _, _, ok := h.Cache.Get(key); ok {
				invalidated++
			}
			h.Cache.Invalidate(key)
		}
	case sub != "":
		invalidated = h.Cache.InvalidatePrefix(cache.Key(sub, ""))
	default:
		invalidated = h.Cache.Clear()
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Str("subinventory", sub).
		Str("part", part).
		Int("invalidated", invalidated).
		Msg("transaction cache refreshed")

	if h.Hub != nil {
		h.Hub.BroadcastChange("bill", "refreshed", part, sub)
	}
	audit.LogAudit(h.DB, nil, r, audit.Entry{
		Action:   audit.ActionRefresh,
		Module:   "bill",
		RecordID: part,
		Summary:  fmt.Sprintf("Refreshed %d cached set(s) for subinventory %q", invalidated, sub),
	})
	response.JSON(w, map[string]interface{}{
		"subinventory": sub,
		"part_number":  part,
		"invalidated":  invalidated,
	})
}

// ListAudit handles GET /api/v1/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ve := &validation.ValidationErrors{}
	limit := audit.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ve.Add("limit", "must be an integer")
		} else {
			validation.ValidateIntRange(ve, "limit", n, 1, validation.MaxPageSize)
			limit = n
		}
	}
	action := r.URL.Query().Get("action")
	validation.ValidateEnum(ve, "action", action, validation.ValidAuditActions)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	entries, err := audit.RecentByAction(h.DB, action, limit)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("read audit log")
		response.Err(w, "failed to read audit log", http.StatusInternalServerError)
		return
	}
	response.JSON(w, entries)
}
