package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidRange is returned for a date window with a missing boundary or start after end.
var ErrInvalidRange = errors.New("invalid date range")

// fingerprintDates is how many of the most recent distinct dates key the latest-month memo.
const fingerprintDates = 5

// DateRange is inclusive on both ends at day granularity.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls on a calendar day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	day := startOfDay(t.In(r.Start.Location()))
	return !day.Before(startOfDay(r.Start)) && !day.After(startOfDay(r.End))
}

// Validate returns ErrInvalidRange when Start is after End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: missing boundary", ErrInvalidRange)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return nil
}

// Label renders the range the way export headers show it.
func (r DateRange) Label() string {
	return r.Start.Format("02/01/2006") + " - " + r.End.Format("02/01/2006")
}

// FallbackWindow is the window offered when a part has no dated history at all.
// It spans YearsBack before now to YearsAhead after now.
type FallbackWindow struct {
	Enabled    bool
	YearsBack  int
	YearsAhead int
}

// DefaultFallbackWindow is five years back through one year ahead.
var DefaultFallbackWindow = FallbackWindow{Enabled: true, YearsBack: 5, YearsAhead: 1}

// Window returns the fallback range relative to now.
func (f FallbackWindow) Window(now time.Time) (DateRange, bool) {
	if !f.Enabled {
		return DateRange{}, false
	}
	return DateRange{
		Start: startOfDay(now.AddDate(-f.YearsBack, 0, 0)),
		End:   endOfDay(now.AddDate(f.YearsAhead, 0, 0)),
	}, true
}

type windowEntry struct {
	r  DateRange
	ok bool
}

// WindowCache memoizes latest-month windows by a fingerprint of the input set.
type WindowCache struct {
	mu      sync.Mutex
	entries map[string]windowEntry
	max     int
}

// NewWindowCache creates a cache holding at most max windows (0 means 256).
func NewWindowCache(max int) *WindowCache {
	if max <= 0 {
		max = 256
	}
	return &WindowCache{entries: make(map[string]windowEntry), max: max}
}

// Reset drops every memoized window.
func (c *WindowCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]windowEntry)
	c.mu.Unlock()
}

// RangeResolver establishes the display window for a set of transactions.
type RangeResolver struct {
	parser   *DateParser
	cache    *WindowCache
	fallback FallbackWindow
	now      func() time.Time
}

// NewRangeResolver builds a resolver; a nil cache disables memoization.
func NewRangeResolver(parser *DateParser, cache *WindowCache, fallback FallbackWindow) *RangeResolver {
	return &RangeResolver{parser: parser, cache: cache, fallback: fallback, now: time.Now}
}

// LatestMonthWindow returns the calendar month holding the most recent parseable transaction.
func (rr *RangeResolver) LatestMonthWindow(txs []Transaction) (DateRange, bool) {
	key := rr.fingerprint(txs)
	if rr.cache != nil {
		rr.cache.mu.Lock()
		e, hit := rr.cache.entries[key]
		rr.cache.mu.Unlock()
		if hit {
			return e.r, e.ok
		}
	}

	var latest time.Time
	found := false
	for _, tx := range txs {
		t, ok := rr.parser.Parse(tx.RawDate)
		if !ok {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}

	var r DateRange
	if found {
		y, m, _ := latest.Date()
		loc := latest.Location()
		r = DateRange{
			Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
			End:   endOfDay(time.Date(y, m+1, 0, 0, 0, 0, 0, loc)),
		}
	}

	if rr.cache != nil {
		rr.cache.mu.Lock()
		if len(rr.cache.entries) >= rr.cache.max {
			rr.cache.entries = make(map[string]windowEntry, rr.cache.max)
		}
		rr.cache.entries[key] = windowEntry{r: r, ok: found}
		rr.cache.mu.Unlock()
	}
	return r, found
}

// DefaultWindow is the latest-month window, or the fallback policy when nothing is dated.
func (rr *RangeResolver) DefaultWindow(txs []Transaction) (DateRange, bool) {
	if r, ok := rr.LatestMonthWindow(txs); ok {
		return r, true
	}
	return rr.fallback.Window(rr.now().In(rr.parser.Location()))
}

// ExplicitWindow parses caller-supplied boundaries and widens them to whole days.
func (rr *RangeResolver) ExplicitWindow(start, end string) (DateRange, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return DateRange{}, fmt.Errorf("%w: start and end dates are both required", ErrInvalidRange)
	}
	s, ok := rr.parser.Parse(start)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: cannot parse start date %q", ErrInvalidRange, start)
	}
	e, ok := rr.parser.Parse(end)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: cannot parse end date %q", ErrInvalidRange, end)
	}
	r := DateRange{Start: startOfDay(s), End: endOfDay(e)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// fingerprint keys the memo by record count plus the most recent distinct date strings.
func (rr *RangeResolver) fingerprint(txs []Transaction) string {
	type dated struct {
		raw string
		t   time.Time
	}
	seen := make(map[string]bool)
	var ds []dated
	for _, tx := range txs {
		if seen[tx.RawDate] {
			continue
		}
		seen[tx.RawDate] = true
		t, _ := rr.parser.Parse(tx.RawDate)
		ds = append(ds, dated{raw: tx.RawDate, t: t})
	}
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].t.Equal(ds[j].t) {
			return ds[i].t.After(ds[j].t)
		}
		return ds[i].raw < ds[j].raw
	})
	if len(ds) > fingerprintDates {
		ds = ds[:fingerprintDates]
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(txs)))
	for _, d := range ds {
		b.WriteByte('|')
		b.WriteString(d.raw)
	}
	return b.String()
}
