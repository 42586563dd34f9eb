package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"billcard/internal/audit"
	"billcard/internal/models"

	_ "modernc.org/sqlite"
)

// SetupTestDB creates an in-memory SQLite database with the audit tables.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// every pooled connection to :memory: is a separate database
	testDB.SetMaxOpenConns(1)
	if err := audit.Migrate(testDB); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return testDB
}

// Record is a raw transaction as the fake upstream serves it.
type Record map[string]interface{}

// Upstream is a fake transaction API.
type Upstream struct {
	*httptest.Server
	Records []Record
	Status  int
	hits    atomic.Int64
}

// Hits returns how many transaction requests were served.
func (u *Upstream) Hits() int {
	return int(u.hits.Load())
}

// NewUpstream starts a fake transaction API serving records under /transactions,
// filtered by the part_number and subinventory query parameters.
func NewUpstream(t *testing.T, records ...Record) *Upstream {
	t.Helper()
	u := &Upstream{Records: records, Status: http.StatusOK}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" {
			http.NotFound(w, r)
			return
		}
		u.hits.Add(1)
		if u.Status != http.StatusOK {
			w.WriteHeader(u.Status)
			fmt.Fprint(w, `{"error":"upstream failure"}`)
			return
		}
		part := r.URL.Query().Get("part_number")
		sub := r.URL.Query().Get("subinventory")
		out := []Record{}
		for _, rec := range u.Records {
			if part != "" && !strings.EqualFold(fmt.Sprint(rec["part_number"]), part) {
				continue
			}
			if sub != "" && !strings.EqualFold(fmt.Sprint(rec["subinventory"]), sub) {
				continue
			}
			out = append(out, rec)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": out})
	}))
	t.Cleanup(u.Close)
	return u
}

// Tx builds a raw record for part in subinventory MAIN.
func Tx(id, date, qty, part string) Record {
	return Record{
		"transaction_id":       id,
		"transaction_date":     date,
		"transaction_quantity": qty,
		"part_number":          part,
		"description":          "Desc " + part,
		"subinventory":         "MAIN",
	}
}

// JSONRequest creates an HTTP request with a JSON body.
func JSONRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeAPIResponse decodes an APIResponse from a ResponseRecorder.
func DecodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	return response
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}
