package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"billcard/internal/models"
)

func TestJSONMeta(t *testing.T) {
	w := httptest.NewRecorder()
	JSONMeta(w, []string{"a"}, 10, 2, 5)

	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Meta == nil || resp.Meta.Total != 10 || resp.Meta.Page != 2 || resp.Meta.Limit != 5 {
		t.Errorf("Unexpected meta %+v", resp.Meta)
	}
}

func TestErr(t *testing.T) {
	w := httptest.NewRecorder()
	Err(w, "bad range", http.StatusBadRequest)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["error"] != "bad range" {
		t.Errorf("Expected error message, got %v", body)
	}
}

func TestJSONCached_NotModified(t *testing.T) {
	data := map[string]int{"balance": 85}

	w := httptest.NewRecorder()
	JSONCached(w, httptest.NewRequest("GET", "/", nil), data)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("Expected 200 with ETag, got %d %q", w.Code, etag)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("If-None-Match", `"other", `+etag)
	w = httptest.NewRecorder()
	JSONCached(w, req, data)
	if w.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("Expected empty body on 304")
	}

	w = httptest.NewRecorder()
	JSONCached(w, httptest.NewRequest("GET", "/", nil), map[string]int{"balance": 86})
	if w.Header().Get("ETag") == etag {
		t.Error("Expected different ETag for different content")
	}
}
