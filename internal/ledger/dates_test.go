package ledger

import (
	"errors"
	"testing"
	"time"
)

func newTestParser() *DateParser {
	return NewDateParser(time.UTC, NewParseCache(0))
}

func TestParse_SlashedShortYear(t *testing.T) {
	p := newTestParser()
	got, ok := p.Parse("1/5/24 9:07")
	if !ok {
		t.Fatal("Expected 1/5/24 9:07 to parse")
	}
	want := time.Date(2024, time.January, 5, 9, 7, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParse_ISO(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01 10:30:15", time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)},
		{"2024-05-01T10:30:15", time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:30:15+02:00", time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := p.Parse(tt.in)
		if !ok {
			t.Errorf("Expected %q to parse", tt.in)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	p := newTestParser()
	for _, in := range []string{
		"",
		"13/25/24 99:99",
		"13/01/24 10:00",
		"02/30/24 10:00",
		"01/05/24 24:00",
		"01/05/24",
		"01/05 10:00",
		"ab/cd/ef 10:00",
		"2024-13-45 10:00:00",
		"not-a-date",
	} {
		if _, ok := p.Parse(in); ok {
			t.Errorf("Expected %q to be rejected", in)
		}
	}
}

func TestParse_Memoized(t *testing.T) {
	cache := NewParseCache(0)
	p := NewDateParser(time.UTC, cache)
	p.Parse("01/05/24 10:00")
	p.Parse("01/05/24 10:00")
	p.Parse("garbage")
	if cache.Len() != 2 {
		t.Errorf("Expected 2 memoized entries, got %d", cache.Len())
	}
	cache.Reset()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after reset, got %d", cache.Len())
	}
}

func TestParseCache_Bounded(t *testing.T) {
	cache := NewParseCache(2)
	p := NewDateParser(time.UTC, cache)
	p.Parse("01/05/24 10:00")
	p.Parse("01/06/24 10:00")
	p.Parse("01/07/24 10:00")
	if cache.Len() > 2 {
		t.Errorf("Expected at most 2 entries, got %d", cache.Len())
	}
}

func TestFormat(t *testing.T) {
	p := newTestParser()
	if got := p.Format("1/5/24 9:07"); got != "05/01/2024 09:07" {
		t.Errorf("Expected 05/01/2024 09:07, got %s", got)
	}
	if got := p.Format("2024-05-01 10:30:00"); got != "01/05/2024 10:30" {
		t.Errorf("Expected 01/05/2024 10:30, got %s", got)
	}
	if got := p.Format("garbage"); got != "garbage" {
		t.Errorf("Expected unparseable input returned unchanged, got %s", got)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	p := newTestParser()
	for _, raw := range []string{"1/5/24 9:07", "12/31/23 23:59", "2024-02-29 00:00:00"} {
		once := p.Format(raw)
		twice := p.Format(once)
		if once != twice {
			t.Errorf("Expected %q to be stable, reformatted to %q", once, twice)
		}
	}
}

func TestExplicitWindow(t *testing.T) {
	rr := NewRangeResolver(newTestParser(), nil, DefaultFallbackWindow)
	r, err := rr.ExplicitWindow("2024-05-03", "2024-05-10")
	if err != nil {
		t.Fatalf("ExplicitWindow: %v", err)
	}
	if !r.Start.Equal(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start %v", r.Start)
	}
	wantEnd := time.Date(2024, 5, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	if !r.End.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, r.End)
	}

	for _, c := range [][2]string{{"", "2024-05-10"}, {"2024-05-03", ""}, {"2024-05-11", "2024-05-10"}, {"bogus", "2024-05-10"}} {
		if _, err := rr.ExplicitWindow(c[0], c[1]); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ExplicitWindow(%q, %q): expected ErrInvalidRange, got %v", c[0], c[1], err)
		}
	}

	if _, err := rr.ExplicitWindow("2024-05-10", "2024-05-10"); err != nil {
		t.Errorf("Expected a single-day window to be valid, got %v", err)
	}
}

func TestDateRange_ContainsDayGranularity(t *testing.T) {
	r := DateRange{
		Start: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC),
	}
	cases := map[time.Time]bool{
		time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC):             true,
		time.Date(2024, 5, 10, 23, 59, 59, 999999999, time.UTC): true,
		time.Date(2024, 5, 2, 23, 59, 0, 0, time.UTC):           false,
		time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC):            false,
	}
	for ts, want := range cases {
		if got := r.Contains(ts); got != want {
			t.Errorf("Contains(%v): expected %v, got %v", ts, want, got)
		}
	}
}

func TestLatestMonthWindow(t *testing.T) {
	p := newTestParser()
	rr := NewRangeResolver(p, NewWindowCache(0), DefaultFallbackWindow)
	txs := []Transaction{
		{RawDate: "01/05/24 10:00"},
		{RawDate: "2024-02-14 08:00:00"},
		{RawDate: "garbage"},
	}
	r, ok := rr.LatestMonthWindow(txs)
	if !ok {
		t.Fatal("Expected a window")
	}
	if !r.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start %v", r.Start)
	}
	if r.End.Day() != 29 || r.End.Hour() != 23 || r.End.Minute() != 59 {
		t.Errorf("Expected end on 29 Feb 23:59, got %v", r.End)
	}

	// Memoized result for an identical fingerprint.
	again, _ := rr.LatestMonthWindow(txs)
	if !again.Start.Equal(r.Start) || !again.End.Equal(r.End) {
		t.Errorf("Expected memoized window to match")
	}

	if _, ok := rr.LatestMonthWindow([]Transaction{{RawDate: "x"}}); ok {
		t.Error("Expected no window for undated history")
	}
}

func TestDefaultWindow_Fallback(t *testing.T) {
	p := newTestParser()
	rr := NewRangeResolver(p, nil, DefaultFallbackWindow)
	rr.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }

	r, ok := rr.DefaultWindow(nil)
	if !ok {
		t.Fatal("Expected fallback window")
	}
	if r.Start.Year() != 2021 || r.End.Year() != 2027 {
		t.Errorf("Expected 2021..2027, got %v..%v", r.Start, r.End)
	}

	rr.fallback = FallbackWindow{}
	if _, ok := rr.DefaultWindow(nil); ok {
		t.Error("Expected no window with fallback disabled")
	}
}
