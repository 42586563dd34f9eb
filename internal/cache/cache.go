// Package cache holds fetched transaction sets for a bounded time.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"billcard/internal/models"
	"billcard/internal/upstream"
)

// DefaultTTL is how long a fetched transaction set is served before refetching.
const DefaultTTL = 5 * time.Minute

// Key identifies a cached transaction set. An empty Part means the whole subinventory.
// Both halves are case-folded since part lookups match case-insensitively.
func Key(subinventory, part string) string {
	return strings.ToUpper(strings.TrimSpace(subinventory)) + "|" + strings.ToUpper(strings.TrimSpace(part))
}

type entry struct {
	records   []models.RawTransaction
	fetchedAt time.Time
	expires   time.Time
}

// Store is a TTL cache of raw transaction sets.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewStore creates a Store with the given TTL (0 means DefaultTTL).
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Get returns the records for key and when they were fetched, if still fresh.
func (s *Store) Get(key string) ([]models.RawTransaction, time.Time, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}
	if !s.now().Before(e.expires) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, time.Time{}, false
	}
	return e.records, e.fetchedAt, true
}

// Set stores records under key and returns the fetch time recorded for them.
func (s *Store) Set(key string, records []models.RawTransaction) time.Time {
	now := s.now()
	s.mu.Lock()
	s.entries[key] = entry{records: records, fetchedAt: now, expires: now.Add(s.ttl)}
	s.mu.Unlock()
	return now
}

// Invalidate removes key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// InvalidatePrefix removes every key starting with prefix and returns how many were dropped.
func (s *Store) InvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Purge removes expired entries and returns how many were dropped.
func (s *Store) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Clear removes every entry and returns how many were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]entry)
	return n
}

// Len returns the number of entries, fresh or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor purges expired entries every interval until Close is called.
func (s *Store) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Purge()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the janitor.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Loader reads through the Store to an upstream Source.
type Loader struct {
	Store  *Store
	Source upstream.Source
}

// Load returns cached records for subinventory/part, fetching on a miss.
// hit reports whether the records came from the cache.
func (l *Loader) Load(ctx context.Context, subinventory, part string) (records []models.RawTransaction, fetchedAt time.Time, hit bool, err error) {
	key := Key(subinventory, part)
	if recs, at, ok := l.Store.Get(key); ok {
		return recs, at, true, nil
	}
	recs, err := l.Source.FetchTransactions(ctx, subinventory, part)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return recs, l.Store.Set(key, recs), false, nil
}
