package upstream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFetchTransactions_Envelope(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":[{"id":1,"transaction_date":"01/05/24 10:00","transaction_quantity":"3","part_number":"A"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second, zerolog.Nop())
	recs, err := c.FetchTransactions(context.Background(), "MAIN", "A")
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(recs) != 1 || recs[0].PartNumber != "A" {
		t.Errorf("Unexpected records %+v", recs)
	}
	if gotQuery != "part_number=A&subinventory=MAIN" {
		t.Errorf("Unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
}

func TestFetchTransactions_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"transaction_id":"7","part_number":"B"},{"transaction_id":"8","part_number":"B"}]`))
	}))
	defer srv.Close()

	recs, err := NewClient(srv.URL, "", 0, zerolog.Nop()).FetchTransactions(context.Background(), "MAIN", "")
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(recs) != 2 || recs[1].Identifier() != "8" {
		t.Errorf("Unexpected records %+v", recs)
	}
}

func TestFetchTransactions_LogsComponentOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	if _, err := NewClient(srv.URL, "", 0, log).FetchTransactions(context.Background(), "MAIN", "P-1"); err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	line := buf.String()
	if n := strings.Count(line, `"component"`); n != 1 {
		t.Errorf("Expected one component field, got %d in %q", n, line)
	}
	if !strings.Contains(line, `"component":"upstream"`) {
		t.Errorf("Expected upstream component, got %q", line)
	}
}

func TestFetchTransactions_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second, zerolog.Nop()).FetchTransactions(context.Background(), "MAIN", "A")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", se.StatusCode)
	}
}

func TestFetchTransactions_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, "", 5*time.Second, zerolog.Nop()).FetchTransactions(ctx, "MAIN", "A")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDecodeTransactions(t *testing.T) {
	recs, err := DecodeTransactions([]byte("  "))
	if err != nil || recs == nil || len(recs) != 0 {
		t.Errorf("Expected empty records for empty body, got %v %v", recs, err)
	}
	recs, err = DecodeTransactions([]byte(`{"data":null}`))
	if err != nil || recs == nil {
		t.Errorf("Expected empty records for null data, got %v %v", recs, err)
	}
	if _, err := DecodeTransactions([]byte(`{not json`)); err == nil {
		t.Error("Expected decode error")
	}
}
