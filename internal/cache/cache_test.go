package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"billcard/internal/models"
)

type fakeSource struct {
	calls   int
	records []models.RawTransaction
	err     error
}

func (f *fakeSource) FetchTransactions(ctx context.Context, subinventory, part string) ([]models.RawTransaction, error) {
	f.calls++
	return f.records, f.err
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set("K", []models.RawTransaction{{PartNumber: "A"}})
	if _, _, ok := s.Get("K"); !ok {
		t.Fatal("Expected fresh entry")
	}

	now = now.Add(59 * time.Second)
	if _, _, ok := s.Get("K"); !ok {
		t.Error("Expected entry still fresh before TTL")
	}

	now = now.Add(time.Second)
	if _, _, ok := s.Get("K"); ok {
		t.Error("Expected entry expired at TTL")
	}
	if s.Len() != 0 {
		t.Errorf("Expected expired entry evicted, got %d entries", s.Len())
	}
}

func TestStore_InvalidateAndPurge(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set(Key("main", "A"), nil)
	s.Set(Key("main", "B"), nil)
	s.Set(Key("spare", "A"), nil)

	if n := s.InvalidatePrefix(Key("main", "")); n != 2 {
		t.Errorf("Expected 2 entries dropped, got %d", n)
	}
	s.Invalidate(Key("spare", "A"))
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}

	s.Set("X", nil)
	now = now.Add(2 * time.Minute)
	s.Set("Y", nil)
	if n := s.Purge(); n != 1 {
		t.Errorf("Expected 1 expired entry purged, got %d", n)
	}
}

func TestKey(t *testing.T) {
	if Key(" main ", "P-1") != "MAIN|P-1" {
		t.Errorf("Unexpected key %q", Key(" main ", "P-1"))
	}
	if Key("main", "p-1 ") != Key("MAIN", "P-1") {
		t.Errorf("Expected part case to be folded, got %q vs %q", Key("main", "p-1 "), Key("MAIN", "P-1"))
	}
}

func TestLoader_ReadThrough(t *testing.T) {
	src := &fakeSource{records: []models.RawTransaction{{PartNumber: "A"}}}
	l := &Loader{Store: NewStore(time.Minute), Source: src}

	recs, _, hit, err := l.Load(context.Background(), "MAIN", "A")
	if err != nil || hit || len(recs) != 1 {
		t.Fatalf("Expected miss with 1 record, got hit=%v len=%d err=%v", hit, len(recs), err)
	}
	_, _, hit, _ = l.Load(context.Background(), "main", "A")
	if !hit {
		t.Error("Expected second load to hit the cache")
	}
	if src.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", src.calls)
	}
}

func TestLoader_ErrorNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	l := &Loader{Store: NewStore(time.Minute), Source: src}
	if _, _, _, err := l.Load(context.Background(), "MAIN", "A"); err == nil {
		t.Fatal("Expected error")
	}
	if l.Store.Len() != 0 {
		t.Error("Expected failures not to be cached")
	}
}

func TestStore_JanitorStops(t *testing.T) {
	s := NewStore(time.Millisecond)
	s.StartJanitor(time.Millisecond)
	s.Set("K", nil)
	time.Sleep(20 * time.Millisecond)
	s.Close()
	s.Close()
	if s.Len() != 0 {
		t.Errorf("Expected janitor to purge expired entry, got %d", s.Len())
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(time.Minute)
	s.Set(Key("a", ""), nil)
	s.Set(Key("b", "P-1"), nil)
	if n := s.Clear(); n != 2 {
		t.Errorf("Expected 2 cleared, got %d", n)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
}
