package labels

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"billcard/internal/audit"
	"billcard/internal/cache"
	"billcard/internal/handlers/billcard"
	"billcard/internal/ledger"
	"billcard/internal/models"
	"billcard/internal/testutil"
	"billcard/internal/upstream"
)

func newTestHandler(t *testing.T, up *testutil.Upstream) *Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	h := &Handler{DB: db, Size: 128}
	if up != nil {
		store := cache.NewStore(time.Minute)
		t.Cleanup(store.Close)
		h.Bills = &billcard.Handler{
			DB:     db,
			Engine: ledger.NewEngine(ledger.Options{Location: time.UTC}),
			Cache:  store,
			Loader: &cache.Loader{Store: store, Source: upstream.NewClient(up.URL, "", 5*time.Second, zerolog.Nop())},
		}
	}
	return h
}

func sheetRequest(body string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/labels/sheet", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestContent(t *testing.T) {
	tests := []struct {
		base, part, want string
	}{
		{"", "P-100", "P-100"},
		{"https://bills.example.com/", "P-100", "https://bills.example.com/bills/P-100"},
		{"https://bills.example.com", "A/B 1", "https://bills.example.com/bills/A%2FB%201"},
	}
	for _, tt := range tests {
		if got := Content(tt.base, tt.part); got != tt.want {
			t.Errorf("Content(%q, %q) = %q, want %q", tt.base, tt.part, got, tt.want)
		}
	}
}

func TestContent_RoundTripsThroughScan(t *testing.T) {
	for _, part := range []string{"P-100", "A/B 1", "x.y_z"} {
		code := Content("https://bills.example.com", part)
		if got := billcard.ScanCode(code); got != part {
			t.Errorf("ScanCode(%q) = %q, want %q", code, got, part)
		}
	}
}

func TestLabelPNG(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest("GET", "/api/v1/labels/P-100.png?size=200", nil)
	w := httptest.NewRecorder()
	h.LabelPNG(w, req, "P-100")
	testutil.AssertStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("Expected 200x200, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestLabelPNG_DefaultSize(t *testing.T) {
	h := newTestHandler(t, nil)
	w := httptest.NewRecorder()
	h.LabelPNG(w, httptest.NewRequest("GET", "/api/v1/labels/P-1.png", nil), "P-1")
	testutil.AssertStatus(t, w, http.StatusOK)
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Errorf("Expected configured size 128, got %d", img.Bounds().Dx())
	}
}

func TestLabelPNG_Validation(t *testing.T) {
	h := newTestHandler(t, nil)
	tests := []struct {
		name string
		path string
		part string
	}{
		{"too small", "/api/v1/labels/P-1.png?size=10", "P-1"},
		{"too large", "/api/v1/labels/P-1.png?size=5000", "P-1"},
		{"not a number", "/api/v1/labels/P-1.png?size=big", "P-1"},
		{"bad part", "/api/v1/labels/x.png", "<script>"},
		{"empty part", "/api/v1/labels/.png", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.LabelPNG(w, httptest.NewRequest("GET", tt.path, nil), tt.part)
			testutil.AssertStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestLabelSheet(t *testing.T) {
	up := testutil.NewUpstream(t,
		testutil.Tx("1", "1/15/24 09:00", "5", "P-100"),
		testutil.Tx("2", "2/15/24 09:00", "3", "P-200"),
	)
	h := newTestHandler(t, up)

	req := testutil.JSONRequest("POST", "/api/v1/labels/sheet", models.LabelSheetRequest{
		Parts:   []string{"P-100", "P-200", "P-100", "P-300"},
		Columns: 2,
		Size:    96,
	})
	w := httptest.NewRecorder()
	h.LabelSheet(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	// 3 unique parts in 2 columns: A1 B1 on the first block, A3 on the second
	for _, cell := range []string{"A1", "B1", "A3"} {
		pics, err := f.GetPictures(sheetName, cell)
		if err != nil {
			t.Fatalf("GetPictures(%s): %v", cell, err)
		}
		if len(pics) != 1 {
			t.Errorf("Expected one label at %s, got %d", cell, len(pics))
		}
	}
	if pics, _ := f.GetPictures(sheetName, "B3"); len(pics) != 0 {
		t.Errorf("Expected no label at B3, got %d", len(pics))
	}

	a2, _ := f.GetCellValue(sheetName, "A2")
	if a2 != "P-100\nDesc P-100" {
		t.Errorf("Expected caption with description, got %q", a2)
	}
	a4, _ := f.GetCellValue(sheetName, "A4")
	if a4 != "P-300" {
		t.Errorf("Expected bare caption for unknown part, got %q", a4)
	}

	entries, _ := audit.RecentByAction(h.DB, audit.ActionPrint, 10)
	if len(entries) != 1 || !strings.Contains(entries[0].Summary, "3 label(s)") {
		t.Errorf("Expected one PRINT audit entry for 3 labels, got %+v", entries)
	}
}

func TestLabelSheet_UpstreamDownStillPrints(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Status = http.StatusServiceUnavailable
	h := newTestHandler(t, up)

	w := httptest.NewRecorder()
	h.LabelSheet(w, sheetRequest(`{"parts":["P-1"]}`))
	testutil.AssertStatus(t, w, http.StatusOK)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue(sheetName, "A2"); v != "P-1" {
		t.Errorf("Expected bare caption, got %q", v)
	}
}

func TestLabelSheet_MaxSize(t *testing.T) {
	h := newTestHandler(t, nil)
	w := httptest.NewRecorder()
	h.LabelSheet(w, sheetRequest(`{"parts":["P-1","P-2"],"size":1024}`))
	testutil.AssertStatus(t, w, http.StatusOK)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	height, err := f.GetRowHeight(sheetName, 1)
	if err != nil {
		t.Fatalf("GetRowHeight: %v", err)
	}
	if height != excelize.MaxRowHeight {
		t.Errorf("Expected image row capped at %v, got %v", excelize.MaxRowHeight, height)
	}
	if pics, _ := f.GetPictures(sheetName, "B1"); len(pics) != 1 {
		t.Errorf("Expected a label at B1, got %d", len(pics))
	}
}

func TestImageRowHeight(t *testing.T) {
	tests := []struct {
		size int
		want float64
	}{
		{64, 54},
		{256, 198},
		{536, 408},
		{544, excelize.MaxRowHeight},
		{1024, excelize.MaxRowHeight},
	}
	for _, tt := range tests {
		if got := imageRowHeight(tt.size); got != tt.want {
			t.Errorf("imageRowHeight(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestLabelSheet_Validation(t *testing.T) {
	h := newTestHandler(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"no parts", `{"parts":[]}`},
		{"blank parts", `{"parts":[" ",""]}`},
		{"bad part", `{"parts":["<x>"]}`},
		{"too many columns", `{"parts":["P-1"],"columns":20}`},
		{"size too small", `{"parts":["P-1"],"size":8}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.LabelSheet(w, sheetRequest(tt.body))
			testutil.AssertStatus(t, w, http.StatusBadRequest)
		})
	}
	entries, _ := audit.RecentByAction(h.DB, audit.ActionPrint, 10)
	if len(entries) != 0 {
		t.Errorf("Expected no PRINT entries for rejected sheets, got %d", len(entries))
	}
}

func TestSummarizeParts(t *testing.T) {
	if got := summarizeParts([]string{"A", "B"}); got != "A, B" {
		t.Errorf("got %q", got)
	}
	got := summarizeParts([]string{"A", "B", "C", "D", "E", "F", "G"})
	if got != "A, B, C, D, E and 2 more" {
		t.Errorf("got %q", got)
	}
}
