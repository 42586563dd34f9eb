package ledger

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// DisplayLayout is the canonical rendering of a transaction timestamp.
const DisplayLayout = "02/01/2006 15:04"

// defaultParseCacheSize bounds the memo so a long-running process does not grow without limit.
const defaultParseCacheSize = 50000

var isoLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

type parseEntry struct {
	t  time.Time
	ok bool
}

// ParseCache memoizes parse results by raw input string.
type ParseCache struct {
	mu      sync.RWMutex
	entries map[string]parseEntry
	max     int
}

// NewParseCache creates a cache holding at most max entries (0 means the default).
func NewParseCache(max int) *ParseCache {
	if max <= 0 {
		max = defaultParseCacheSize
	}
	return &ParseCache{entries: make(map[string]parseEntry), max: max}
}

func (c *ParseCache) get(s string) (parseEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[s]
	return e, ok
}

func (c *ParseCache) put(s string, e parseEntry) {
	c.mu.Lock()
	if len(c.entries) >= c.max {
		c.entries = make(map[string]parseEntry, c.max)
	}
	c.entries[s] = e
	c.mu.Unlock()
}

// Len returns the number of memoized inputs.
func (c *ParseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every memoized entry.
func (c *ParseCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]parseEntry)
	c.mu.Unlock()
}

// DateParser parses the two date encodings the transaction API has used over time:
// "M/D/YY H:mm" and "YYYY-MM-DD HH:mm:ss".
type DateParser struct {
	loc   *time.Location
	cache *ParseCache
}

// NewDateParser returns a parser interpreting wall-clock strings in loc.
// A nil cache disables memoization.
func NewDateParser(loc *time.Location, cache *ParseCache) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{loc: loc, cache: cache}
}

// Location returns the zone used for wall-clock strings.
func (p *DateParser) Location() *time.Location {
	return p.loc
}

// Parse returns the timestamp for s, or false when s matches neither encoding.
func (p *DateParser) Parse(s string) (time.Time, bool) {
	if p.cache != nil {
		if e, ok := p.cache.get(s); ok {
			return e.t, e.ok
		}
	}
	t, ok := p.parse(s)
	if p.cache != nil {
		p.cache.put(s, parseEntry{t: t, ok: ok})
	}
	return t, ok
}

func (p *DateParser) parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.Contains(s, "-") {
		return p.parseISO(s)
	}
	return p.parseSlashed(s)
}

func (p *DateParser) parseISO(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(p.loc), true
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *DateParser) parseSlashed(s string) (time.Time, bool) {
	datePart, timePart, found := strings.Cut(s, " ")
	if !found {
		return time.Time{}, false
	}
	d := strings.Split(datePart, "/")
	c := strings.Split(strings.TrimSpace(timePart), ":")
	if len(d) != 3 || len(c) < 2 {
		return time.Time{}, false
	}
	for _, v := range append(d, c[0], c[1]) {
		if v == "" {
			return time.Time{}, false
		}
	}

	month, day, yearStr := d[0], d[1], d[2]
	if len(yearStr) == 4 {
		// DD/MM/YYYY is the display form; accept it back unchanged.
		month, day = day, month
	} else if len(yearStr) == 2 {
		yearStr = "20" + yearStr
	}

	year, err1 := strconv.Atoi(yearStr)
	mon, err2 := strconv.Atoi(month)
	dd, err3 := strconv.Atoi(day)
	hh, err4 := strconv.Atoi(c[0])
	mm, err5 := strconv.Atoi(c[1])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return time.Time{}, false
	}
	if mon < 1 || mon > 12 || dd < 1 || dd > daysIn(time.Month(mon), year) {
		return time.Time{}, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(mon), dd, hh, mm, 0, 0, p.loc), true
}

// Format renders s as DD/MM/YYYY HH:mm, or returns s unchanged when it cannot be parsed.
func (p *DateParser) Format(s string) string {
	t, ok := p.Parse(s)
	if !ok {
		return s
	}
	return t.Format(DisplayLayout)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
