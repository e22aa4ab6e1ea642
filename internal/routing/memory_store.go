package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/mmcloughlin/geohash"
)

// DefaultMemoryEntries bounds a MemoryCacheStore created with a
// non-positive size.
const DefaultMemoryEntries = 1024

// topCells is the number of origin cells reported in CacheStats.
const topCells = 5

// CacheStats summarises the contents of a cache store.
type CacheStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	// TopOrigins are the origin cells with the most active entries.
	TopOrigins []CellCount `json:"top_origins,omitempty"`
}

// CellCount is the number of cache entries whose origin falls in a geohash
// cell.
type CellCount struct {
	Cell  string  `json:"cell"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Count int64   `json:"count"`
}

// NewCellCount decodes the centre of cell.
func NewCellCount(cell string, count int64) CellCount {
	lat, lon := geohash.DecodeCenter(cell)
	return CellCount{Cell: cell, Lat: lat, Lon: lon, Count: count}
}

// rankCells orders counts by descending count, then cell, keeping at most n.
func rankCells(counts map[string]int64, n int) []CellCount {
	out := make([]CellCount, 0, len(counts))
	for cell, c := range counts {
		if cell == "" {
			continue
		}
		out = append(out, NewCellCount(cell, c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cell < out[j].Cell
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type memoryEntry struct {
	meta CacheEntry // Result is nil; the payload lives in body
	body []byte
}

// MemoryCacheStore is a bounded LRU CacheStore kept in process memory.
// Results are stored serialised so callers never share a RouteResult with
// the store.
type MemoryCacheStore struct {
	mu         sync.Mutex // guards read-check-remove sequences on lru
	lru        *simplelru.LRU[string, memoryEntry]
	maxEntries int
}

// NewMemoryCacheStore returns an empty store holding at most maxEntries.
func NewMemoryCacheStore(maxEntries int) *MemoryCacheStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	l, err := simplelru.NewLRU[string, memoryEntry](maxEntries, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(fmt.Sprintf("routing: memory store: %v", err))
	}
	return &MemoryCacheStore{lru: l, maxEntries: maxEntries}
}

// GetCachedRoute implements CacheStore. Expired entries are removed on read.
func (s *MemoryCacheStore) GetCachedRoute(_ context.Context, fingerprint string, now time.Time) (*CacheEntry, error) {
	s.mu.Lock()
	e, ok := s.lru.Peek(fingerprint)
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	if !e.meta.ExpiresAt.After(now) {
		s.lru.Remove(fingerprint)
		s.mu.Unlock()
		return nil, nil
	}
	s.lru.Get(fingerprint) // mark recently used
	s.mu.Unlock()

	var res RouteResult
	if err := json.Unmarshal(e.body, &res); err != nil {
		return nil, fmt.Errorf("routing: memory store: decode %s: %w", shortKey(fingerprint), err)
	}
	meta := e.meta
	meta.Result = &res
	return &meta, nil
}

// UpsertCachedRoute implements CacheStore. The least recently used entry is
// evicted when the store is full.
func (s *MemoryCacheStore) UpsertCachedRoute(_ context.Context, entry CacheEntry) error {
	body, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("routing: memory store: encode %s: %w", shortKey(entry.Fingerprint), err)
	}
	entry.Result = nil

	s.mu.Lock()
	s.lru.Add(entry.Fingerprint, memoryEntry{meta: entry, body: body})
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes every entry expired at now and returns how many were
// removed.
func (s *MemoryCacheStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range s.lru.Keys() {
		if e, ok := s.lru.Peek(key); ok && !e.meta.ExpiresAt.After(now) {
			s.lru.Remove(key)
			n++
		}
	}
	return n, nil
}

// PurgeAll empties the store and returns how many entries it held.
func (s *MemoryCacheStore) PurgeAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(s.lru.Len())
	s.lru.Purge()
	return n, nil
}

// Stats counts active and expired entries at now.
func (s *MemoryCacheStore) Stats(_ context.Context, now time.Time) (CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := CacheStats{Total: int64(s.lru.Len())}
	origins := make(map[string]int64)
	for _, e := range s.lru.Values() {
		if e.meta.ExpiresAt.After(now) {
			st.Active++
			origins[e.meta.OriginHash]++
		}
	}
	st.Expired = st.Total - st.Active
	st.TopOrigins = rankCells(origins, topCells)
	return st, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryCacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
